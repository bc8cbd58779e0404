package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/MrEthical07/phoneAuth/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Options configures the router.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	// BasePath prefixes the auth routes; default "/api".
	BasePath string
	// MetricsHandler is mounted on GET /metrics when set.
	MetricsHandler http.Handler
	// Health backs GET /healthz.
	Health func(ctx context.Context) error
	// TrustProxy enables X-Forwarded-For / X-Real-IP handling.
	TrustProxy bool
}

// NewRouter assembles the chi router with the middleware chain and routes.
func NewRouter(engine *phoneAuth.Engine, opts Options) http.Handler {
	if opts.BasePath == "" {
		opts.BasePath = "/api"
	}

	root := chi.NewRouter()
	root.Use(
		middleware.Recover(),
		middleware.RequestID(),
	)
	if opts.TrustProxy {
		root.Use(chimw.RealIP)
	}
	root.Use(
		middleware.ClientInfo(),
		middleware.Logging(opts.Logger),
		middleware.Timeout(opts.Timeout),
	)

	h := &Handlers{Engine: engine, Health: opts.Health}

	root.Get("/healthz", h.Healthz)
	if opts.MetricsHandler != nil {
		root.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	api := chi.NewRouter()
	registerRoutes(api, h, engine)
	root.Mount(opts.BasePath, api)

	return root
}

func registerRoutes(r chi.Router, h *Handlers, engine *phoneAuth.Engine) {
	r.Post("/auth/send-code", h.SendCode)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/refresh", h.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(engine))
		r.Get("/auth/me", h.Me)
	})
}
