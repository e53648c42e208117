package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/middleware"
)

// Engine is the subset of *tokenguard.Engine the HTTP layer drives.
type Engine interface {
	Login(ctx context.Context, req tokenguard.LoginRequest) tokenguard.Result[tokenguard.TokenPair]
	Refresh(ctx context.Context, req tokenguard.RefreshRequest) tokenguard.Result[tokenguard.TokenPair]
	Logout(ctx context.Context, refreshToken string) error
	SetUserRoles(ctx context.Context, req tokenguard.SetRolesRequest) tokenguard.Result[tokenguard.RoleChange]
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
	HasPermission(ctx context.Context, userID, code string) (bool, error)
	ValidateAccess(ctx context.Context, accessToken string) (*tokenguard.AuthResult, error)
}

// Options configures NewRouter.
type Options struct {
	AllowedOrigins []string
	// RoleAdminPermission, when set, is required to change roles.
	RoleAdminPermission string
	// Metrics is mounted on /metrics when non-nil.
	Metrics      http.Handler
	Logger       *slog.Logger
	MaxBodyBytes int64
	// Now is used to compute expiresIn. Defaults to time.Now.
	Now func() time.Time
}

type server struct {
	engine  Engine
	logger  *slog.Logger
	maxBody int64
	now     func() time.Time
}

// NewRouter builds the HTTP handler for engine.
func NewRouter(engine Engine, opts Options) http.Handler {
	s := &server{
		engine:  engine,
		logger:  opts.Logger,
		maxBody: opts.MaxBodyBytes,
		now:     opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxBody <= 0 {
		s.maxBody = 64 << 10
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ClientIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh-token", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	r.Route("/users/{id}", func(r chi.Router) {
		r.Use(middleware.RequireAuth(engine))
		r.Get("/permissions", s.handlePermissions)
		r.With(middleware.RequirePermission(engine, opts.RoleAdminPermission)).
			Put("/roles", s.handleSetRoles)
	})

	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
