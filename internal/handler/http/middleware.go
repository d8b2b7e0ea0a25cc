package http

import (
	"net/http"
	"strings"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/auth"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/service"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/httputil"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/middleware"
)

// ContentTypeJSON rejects requests that carry a body in anything other than
// application/json with 415.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != 0 {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				httputil.WriteErrorCode(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// accessTokenValidator bridges the token signer to middleware.Auth.
func accessTokenValidator(signer *auth.TokenSigner) middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		claims, err := signer.VerifyAccess(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role.String(),
		}, nil
	}
}

// requireCapability admits callers whose role grants c. The role in the
// token is checked first; the account is then re-read so that a demotion or
// withdrawn approval applies before the token expires.
func requireCapability(users *service.UserService, errs httputil.ErrorWriter, c domain.Capability) func(http.Handler) http.Handler {
	claimed := middleware.Authorize(func(claims *middleware.Claims) bool {
		role, ok := domain.ParseRole(claims.Role)
		return ok && role.Can(c)
	})

	return func(next http.Handler) http.Handler {
		current := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := users.Authorize(r.Context(), middleware.UserIDFromContext(r.Context()), c); err != nil {
				errs.Write(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
		return claimed(current)
	}
}
