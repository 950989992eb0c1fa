package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/availability"
)

type RouterConfig struct {
	Rules       availability.RuleStore
	Exceptions  availability.ExceptionStore
	Patients    availability.AppointmentStore
	Booking     *availability.BookingService
	Generator   *availability.Generator
	Sweeper     *availability.Sweeper
	Reconciler  *availability.Reconciler
	Location    *time.Location
	HorizonDays int

	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Rule administration
	r.Route("/rules", func(r chi.Router) {
		r.Post("/", createRuleHandler(cfg.Rules))
		r.Get("/", listRulesHandler(cfg.Rules))
		r.Get("/{id}", getRuleHandler(cfg.Rules))
		r.Post("/{id}/activate", setRuleActiveHandler(cfg.Rules, true))
		r.Post("/{id}/deactivate", setRuleActiveHandler(cfg.Rules, false))
	})

	// Exception administration
	r.Route("/exceptions", func(r chi.Router) {
		r.Post("/", createExceptionHandler(cfg.Exceptions))
		r.Get("/", listExceptionsHandler(cfg.Exceptions))
		r.Delete("/{id}", deleteExceptionHandler(cfg.Exceptions))
	})

	// Slot search and the booking-flow transitions
	r.Route("/slots", func(r chi.Router) {
		r.Get("/", listOpenSlotsHandler(cfg.Booking))
		r.Post("/", createSlotHandler(cfg.Booking))
		r.Get("/{id}", getSlotHandler(cfg.Booking))
		r.Post("/{id}/reserve", slotTransitionHandler(cfg.Booking.Reserve))
		r.Post("/{id}/book", bookSlotHandler(cfg.Booking))
		r.Post("/{id}/cancel", slotTransitionHandler(cfg.Booking.Cancel))
		r.Get("/{id}/appointments", listSlotAppointmentsHandler(cfg.Booking))
	})

	r.Route("/patients", func(r chi.Router) {
		r.Post("/", createPatientHandler(cfg.Patients))
		r.Get("/{id}", getPatientHandler(cfg.Patients))
	})

	// Operator triggers
	admin := NewAdminHandler(cfg.Generator, cfg.Sweeper, cfg.Reconciler, cfg.Location, cfg.HorizonDays)
	r.Post("/admin/generate", admin.Generate)
	r.Post("/admin/sweep", admin.Sweep)
	r.Post("/admin/reconcile", admin.Reconcile)

	return r
}
