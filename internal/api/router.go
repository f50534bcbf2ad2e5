package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/advisorly/advisorly/internal/api/middleware"
	"github.com/advisorly/advisorly/internal/config"
	"github.com/advisorly/advisorly/internal/handlers"
	"github.com/advisorly/advisorly/internal/realtime"
	"github.com/advisorly/advisorly/internal/store"
)

// NewRouter creates and configures the HTTP router. redisStore may be
// nil, in which case rate limiting is disabled.
func NewRouter(cfg *config.Config, logger zerolog.Logger, h *handlers.Handler, hub *realtime.Hub, redisStore *store.RedisStore, uploadsDir string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (requires Redis)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - browser clients reach both the HTTP and websocket surfaces
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/health", h.Health)
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadsDir))))

	// Authenticated JSON routes (small bodies)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Use(middleware.MaxBodySize(64 * 1024))

		r.Post("/consultations", h.CreateConsultation)
		r.Get("/consultations", h.ListConsultations)
		r.Get("/consultations/{id}", h.GetConsultation)
		r.Post("/consultations/{id}/respond", h.RespondConsultation)
		r.Post("/consultations/{id}/complete", h.CompleteConsultation)
		r.Post("/consultations/{id}/cancel", h.CancelConsultation)

		r.Get("/channels/{id}/messages", h.GetHistory)
		r.Get("/channels/{id}/unread", h.GetUnread)

		r.Get("/consultations/{id}/minutes", h.GetMinutes)
		r.Patch("/minutes/{id}", h.UpdateMinutes)
		r.Post("/minutes/{id}/publish", h.PublishMinutes)
	})

	// Authenticated upload routes (multipart bodies)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Use(middleware.MaxBodySize(cfg.MaxUploadBytes))

		r.Post("/channels/{id}/files", h.UploadFile)
		r.Post("/consultations/{id}/minutes", h.SubmitRecording)
	})

	// Realtime surface
	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)

		r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
			realtime.ServeWS(hub, middleware.UserFromContext(req.Context()), w, req)
		})
	})

	return r
}
