package host

import (
	"context"
	"net/http"
	"strings"

	"github.com/droniapp/go-auth-client/gateway"
	"github.com/droniapp/go-auth-client/internal/config"
	"github.com/droniapp/go-auth-client/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// API sends authenticated calls to the backend. *gateway.Client implements it.
type API interface {
	Do(ctx context.Context, endpoint string, opts gateway.RequestOptions) (*gateway.Response, error)
}

// VisibilityMonitor is told when the app is foregrounded. *monitor.Monitor
// implements it.
type VisibilityMonitor interface {
	OnVisible(ctx context.Context)
}

// Server is the local shell the webview talks to: it completes the OAuth
// callback, exposes the session and forwards API calls through the gateway.
type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	router  chi.Router
	config  config.Config
	store   *session.Store
	api     API
	monitor VisibilityMonitor
	logger  zerolog.Logger
}

func New(cfg config.Config, store *session.Store, api API, monitor VisibilityMonitor) *Server {
	s := &Server{
		env:     cfg.GetEnv(),
		config:  cfg,
		store:   store,
		api:     api,
		monitor: monitor,
		logger:  log.Logger.With().Str("component", "host").Logger(),
	}
	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.CorsMiddleware())
	r.Use(FrameSecurityMiddleware)

	r.Get(RouteHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// AUTH
	r.Get(RouteNaverCallback, s.NaverCallbackHandler())
	r.Post(RouteAuthLogout, s.LogoutHandler())
	r.Get(RouteAuthSession, s.SessionHandler())
	r.Post(RouteAuthVisibility, s.VisibilityHandler())

	// API
	r.With(RequireAuth(s.store, s.config.GetLoginPath())).HandleFunc(RouteAPI, s.APIHandler())

	s.router = r
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		s.logger.Debug().Msgf("[%-16s] %s", colourMethod(method), strings.TrimSuffix(route, "/"))
		return nil
	})
}
