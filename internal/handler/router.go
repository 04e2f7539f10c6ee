package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/realorai/session-service/internal/middleware"
	"github.com/realorai/session-service/pkg/logger"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Health    *HealthHandler
	Profile   *ProfileHandler
	Match     *MatchHandler
	Session   *SessionHandler
	Stream    *StreamHandler
	WebSocket *WebSocketHandler
}

// RouterConfig holds the HTTP-level settings.
type RouterConfig struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
}

// NewRouter builds the API router.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Get("/profile", h.Profile.Get)

		r.Route("/match", func(r chi.Router) {
			r.Post("/", h.Match.Find)
			r.Get("/", h.Match.Status)
			r.Delete("/", h.Match.Cancel)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.Session.Get)
			r.Delete("/", h.Session.Reset)
			r.Post("/messages", h.Session.SendMessage)
			r.Post("/surrender", h.Session.Surrender)
			r.Post("/leave", h.Session.Leave)
			r.Post("/decision-prompt", h.Session.RevealDecisionPrompt)
			r.Post("/decision", h.Session.Decide)
			r.Get("/transcript", h.Session.Transcript)
			r.Get("/stream", h.Stream.Stream)
			r.Get("/ws", h.WebSocket.Serve)
		})
	})

	return r
}
