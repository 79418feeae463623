package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/config"
	storemw "github.com/SevenofThr4wn/HardwareStore/internal/middleware"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/directory"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/iam"
	"github.com/SevenofThr4wn/HardwareStore/internal/telemetry"
)

// SyncController is the part of *directory.Scheduler the HTTP layer drives.
type SyncController interface {
	TriggerSyncNow(ctx context.Context) (directory.SyncRun, error)
	LastRun() (directory.SyncRun, bool)
	State() directory.State
}

var _ SyncController = (*directory.Scheduler)(nil)

// RouterOptions controls the construction of the store HTTP router.
// IAMService is required; Sync may be nil when directory sync is disabled.
type RouterOptions struct {
	IAMService  iam.Service
	Sync        SyncController
	Cfg         *config.Config
	Metrics     *telemetry.ServerMetrics
	Logger      *zap.Logger
	CORSOptions *cors.Options
	Middleware  []func(http.Handler) http.Handler
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter assembles a chi.Router with shared middleware, the CORS policy
// and the store handlers mounted.
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(storemw.RequestMetrics(opts.Metrics))

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/health", HandleHealth(opts.Sync))

	cookieSecure := opts.Cfg != nil && opts.Cfg.Session.CookieSecure

	// Login sits outside the auth middleware so a stale cookie cannot block it.
	r.Post("/auth/login", HandleLogin(opts.IAMService, cookieSecure, logger))

	r.Group(func(r chi.Router) {
		r.Use(storemw.MultiAuthMiddleware(opts.IAMService, logger))

		r.Post("/auth/logout", HandleLogout(opts.IAMService, cookieSecure, logger))

		r.With(
			storemw.RequireAuthenticated,
			storemw.RequirePermission(opts.IAMService, auth.ObjectProfile, auth.ActionRead, logger),
		).Get("/api/me", HandleMe(opts.IAMService, logger))

		r.Route("/admin", func(r chi.Router) {
			r.Use(storemw.RequireAuthenticated)

			r.With(storemw.RequirePermission(opts.IAMService, auth.ObjectSync, auth.ActionTrigger, logger)).
				Post("/sync", HandleTriggerSync(opts.Sync, logger))
			r.With(storemw.RequirePermission(opts.IAMService, auth.ObjectSync, auth.ActionRead, logger)).
				Get("/sync", HandleLastSync(opts.Sync))
			r.With(storemw.RequirePermission(opts.IAMService, auth.ObjectUsers, auth.ActionRead, logger)).
				Get("/users", HandleListUsers(opts.IAMService, logger))
		})
	})

	return r
}
