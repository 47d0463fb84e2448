package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service  *appointment.Service
	Postgres Pinger
	Redis    Pinger
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		r.Get("/doctors/{id}/availability", availableSlotsHandler(cfg.Service))
		r.Put("/doctors/{id}/availability", setAvailabilityHandler(cfg.Service))

		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/overdue", overdueHandler(cfg.Service))
		r.Get("/appointments/statistics", statisticsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Get("/appointments/{id}/transitions", permittedTransitionsHandler(cfg.Service))
		r.Post("/appointments/{id}/status", transitionHandler(cfg.Service))
		r.Patch("/appointments/{id}/notes", addNotesHandler(cfg.Service))
	})

	return r
}
