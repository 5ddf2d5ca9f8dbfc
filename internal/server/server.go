package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/careerlens/careerlens/internal/admission"
	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/config"
	"github.com/careerlens/careerlens/internal/document"
	apperrors "github.com/careerlens/careerlens/internal/errors"
	"github.com/careerlens/careerlens/internal/observability"
	"github.com/careerlens/careerlens/internal/server/handlers"
	servermw "github.com/careerlens/careerlens/internal/server/middleware"
)

// Deps are the collaborators the HTTP layer calls into. Service is required;
// nil optional fields disable the feature they back.
type Deps struct {
	Service   *analysis.Service
	Admission *admission.Controller
	ClientKey admission.KeyFunc
	// TrustForwarded lets X-Forwarded-For, X-Real-IP and True-Client-IP
	// replace the peer address. Only set it behind a proxy that overwrites
	// those headers.
	TrustForwarded bool
	// Stats is called on the request path; remote recorders belong behind
	// admission.AsyncStats.
	Stats     admission.StatsRecorder
	Extractor *document.Extractor
	Objects   *document.S3Source
	Health    *handlers.HealthManager
	Build     handlers.BuildInfo

	// AdminToken enables POST /admin/signal when set.
	AdminToken string
}

// Server is the careerlens HTTP API.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	deps   Deps
}

// New builds the router for cfg and deps.
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Admission == nil {
		deps.Admission = admission.New(nil)
	}
	if deps.ClientKey == nil {
		deps.ClientKey = admission.ClientKey("", false)
	}
	if deps.Health == nil {
		deps.Health = handlers.NewHealthManager(deps.Build.Version)
	}

	r := chi.NewRouter()
	if deps.TrustForwarded {
		r.Use(middleware.RealIP)
	}
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.New(apperrors.CodeNotFound, "The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.New(apperrors.CodeMethodNotAllowed, "The requested method is not allowed for this resource"))
	})

	s := &Server{router: r, cfg: cfg, deps: deps}
	s.registerRoutes()
	return s
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       orDefault(s.cfg.ReadTimeout, 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      orDefault(s.cfg.WriteTimeout, 120*time.Second),
		IdleTimeout:       orDefault(s.cfg.IdleTimeout, 120*time.Second),
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.String("addr", addr))
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.cfg.Port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// HandleError writes err as the standard JSON error body.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
