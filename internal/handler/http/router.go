package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/auth"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/domain"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/internal/service"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/health"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/httputil"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/middleware"
)

// RouterConfig carries the dependencies of NewRouter. Nil limiters disable
// the corresponding rate limit.
type RouterConfig struct {
	ServiceName string
	Sessions    *service.SessionService
	Users       *service.UserService
	Signer      *auth.TokenSigner
	Health      *health.Handler
	Logger      *slog.Logger
	CORS        middleware.CORSConfig

	// AuthLimiter guards register, login and refresh; APILimiter guards
	// everything under /api/v1.
	AuthLimiter      middleware.Limiter
	AuthLimitOptions middleware.RateLimitOptions
	APILimiter       middleware.Limiter
	APILimitOptions  middleware.RateLimitOptions

	PprofAllowedCIDRs []string

	// Debug exposes internal error text in 500 responses.
	Debug bool
}

// NewRouter creates a chi router with every route of the API registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, cfg.Logger)

	errs := httputil.ErrorWriter{Logger: cfg.Logger, Debug: cfg.Debug}
	authHandler := NewAuthHandler(cfg.Sessions, errs)
	userHandler := NewUserHandler(cfg.Users, errs)
	requireAuth := middleware.Auth(accessTokenValidator(cfg.Signer))

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.APILimiter != nil {
			r.Use(middleware.RateLimit(cfg.APILimiter, cfg.APILimitOptions, cfg.Logger))
		}
		r.Use(ContentTypeJSON)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if cfg.AuthLimiter != nil {
					r.Use(middleware.RateLimit(cfg.AuthLimiter, cfg.AuthLimitOptions, cfg.Logger))
				}
				r.Post("/register", authHandler.Register)
				r.With(middleware.NoStore).Post("/login", authHandler.Login)
				r.With(middleware.NoStore).Post("/refresh", authHandler.Refresh)
			})
			r.Post("/logout", authHandler.Logout)
			r.With(requireAuth).Post("/change-password", authHandler.ChangePassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", userHandler.Me)
			r.Patch("/me", userHandler.UpdateMe)

			r.Group(func(r chi.Router) {
				r.Use(requireCapability(cfg.Users, errs, domain.CapManageUsers))

				r.Get("/", userHandler.List)
				r.Patch("/{id}/approve", userHandler.Approve)
				r.Patch("/{id}/role", userHandler.ChangeRole)
			})
		})
	})

	return r
}
