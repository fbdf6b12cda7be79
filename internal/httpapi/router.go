package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/MrEthical07/authcore/permission"
)

// DefaultMaxBodyBytes caps JSON request bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 64 << 10

// Options tune the HTTP surface.
type Options struct {
	Logger *slog.Logger
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy   bool
	MaxBodyBytes int64
}

// Server holds the handlers. Build one with New.
type Server struct {
	engine   *authcore.Engine
	exporter *prometheus.Exporter
	logger   *slog.Logger
	maxBody  int64
}

// New returns the routed handler for engine.
func New(engine *authcore.Engine, opts Options) http.Handler {
	s := &Server{
		engine:   engine,
		exporter: prometheus.NewExporter(engine),
		logger:   opts.Logger,
		maxBody:  opts.MaxBodyBytes,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	return s.buildRouter(opts.TrustProxy)
}

func (s *Server) buildRouter(trustProxy bool) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(s.loggingMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(clientContextMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.exporter.Handler())

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)
			r.With(middleware.Guard(s.engine)).Post("/logout-all", s.handleLogoutAll)
		})

		r.Route("/users", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.Guard(s.engine))
				r.Get("/me", s.handleGetMe)
				r.Put("/me", s.handleUpdateMe)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(s.engine, permission.RoleAdmin))
				r.Get("/", s.handleListUsers)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/active", s.handleSetActive)
					r.Patch("/role", s.handleSetRole)
				})
			})
		})
	})

	return r
}
