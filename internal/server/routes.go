package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/observability"
	"github.com/careerlens/careerlens/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	health := s.deps.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.NewVersionHandler(s.deps.Build, s.inferenceInfo()))
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/operations", s.handleOperations)

		r.Route("/analysis", func(r chi.Router) {
			r.Use(limitBody(s.cfg.MaxBodyBytes))

			svc := s.deps.Service
			r.With(s.admit(analysis.OpParseCV)).
				Post("/parse-cv", analysisHandler(s.decodeParseCV, svc.ParseCV))
			r.With(s.admit(analysis.OpMatchJob)).
				Post("/match-job", analysisHandler(decodeJSON[analysis.MatchJobInput], svc.MatchJob))
			r.With(s.admit(analysis.OpCoverLetter)).
				Post("/cover-letter", analysisHandler(decodeJSON[analysis.CoverLetterInput], svc.CoverLetter))
			r.With(s.admit(analysis.OpDetectProfile)).
				Post("/detect-profile", analysisHandler(decodeJSON[analysis.DetectProfileInput], svc.DetectProfile))
			r.With(s.admit(analysis.OpRewriteCV)).
				Post("/rewrite-cv", analysisHandler(decodeJSON[analysis.RewriteCVInput], svc.RewriteCV))
		})
	})

	s.registerAdminEndpoint()
}

func (s *Server) inferenceInfo() handlers.InferenceInfo {
	if s.deps.Service == nil || s.deps.Service.Gateway == nil {
		return handlers.InferenceInfo{}
	}
	gw := s.deps.Service.Gateway
	return handlers.InferenceInfo{Provider: gw.Provider(), Model: gw.Model}
}

// registerAdminEndpoint mounts the gofulmen signal endpoint behind a bearer
// token. Posting HUP reloads configuration.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.deps.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.deps.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
