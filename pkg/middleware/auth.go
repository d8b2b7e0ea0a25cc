package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/httputil"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/logger"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// Claims are the verified identity of an access token's bearer.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// TokenValidator verifies a raw bearer token.
type TokenValidator func(token string) (*Claims, error)

// Auth rejects requests without a valid bearer token with 401 AUTH_FAILED
// and stores the verified Claims in the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, "missing or malformed authorization header")
				return
			}

			claims, err := validate(token)
			if err != nil || claims == nil || claims.UserID == "" {
				writeAuthError(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = logger.WithUserID(ctx, claims.UserID)
			if l := logger.FromContext(ctx); l != slog.Default() {
				ctx = logger.NewContext(ctx, l.With("user_id", claims.UserID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize lets the request through only when allowed(claims) holds;
// otherwise it responds 403 FORBIDDEN. It must run after Auth.
func Authorize(allowed func(*Claims) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeAuthError(w, "authentication required")
				return
			}
			if !allowed(claims) {
				httputil.WriteErrorCode(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ClaimsFromContext returns the claims stored by Auth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// UserIDFromContext returns the authenticated user's ID, or "".
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// WithClaims returns ctx carrying c. Handlers under test use it to skip Auth.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	httputil.WriteErrorCode(w, http.StatusUnauthorized, "AUTH_FAILED", message)
}
