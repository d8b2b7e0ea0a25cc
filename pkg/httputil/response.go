package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/errors"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/logger"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/validator"
)

// Response is the JSON envelope returned by every endpoint.
type Response struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Meta    any            `json:"meta,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error member of a failed Response.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes a successful envelope around data.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Success: true, Data: data})
}

// WriteList writes a successful envelope with listing metadata.
func WriteList(w http.ResponseWriter, data, meta any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// WriteErrorCode writes a failed envelope with an explicit code and status.
// Used by middleware that rejects requests before any domain code runs.
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Response{Error: &ErrorResponse{Code: code, Message: message}})
}

// ErrorWriter translates errors into failed envelopes. Debug adds the
// underlying error text to 500 responses and must stay off in production.
type ErrorWriter struct {
	Logger *slog.Logger
	Debug  bool
}

// Write translates err. AppErrors keep their kind, code and fields;
// validator errors become VALIDATION_ERROR; body decode errors become a 400;
// everything else is logged and returned as INTERNAL_ERROR.
func (e ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
			Code:      apperrors.KindValidation.String(),
			Message:   "request validation failed",
			Fields:    valErr.Fields(),
			RequestID: requestID,
		}})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Kind != apperrors.KindInternal {
		WriteJSON(w, appErr.Status, Response{Error: &ErrorResponse{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Fields:    appErr.Fields,
			RequestID: requestID,
		}})
		return
	}

	var decodeErr *validator.DecodeError
	if errors.As(err, &decodeErr) {
		WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
			Code:      apperrors.KindValidation.String(),
			Message:   "invalid request body",
			RequestID: requestID,
		}})
		return
	}

	e.logger(r).ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("correlation_id", requestID),
	)

	resp := &ErrorResponse{
		Code:      apperrors.KindInternal.String(),
		Message:   "an internal error occurred",
		RequestID: requestID,
	}
	if e.Debug {
		resp.Detail = err.Error()
	}
	WriteJSON(w, http.StatusInternalServerError, Response{Error: resp})
}

// logger prefers the request-scoped logger set by middleware.RequestLogger.
func (e ErrorWriter) logger(r *http.Request) *slog.Logger {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && e.Logger != nil {
		return e.Logger
	}
	return l
}

// ParseUUID validates that param is a UUID. On failure it writes a 400
// VALIDATION_ERROR response and returns false so the caller can return early.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteErrorCode(w, http.StatusBadRequest, apperrors.KindValidation.String(), "invalid UUID: "+param)
		return uuid.Nil, false
	}
	return id, true
}
