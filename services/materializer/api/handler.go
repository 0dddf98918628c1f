package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/crewboard/materializer/internal/domain"
	redisstore "github.com/crewboard/materializer/internal/redis"
	"github.com/crewboard/materializer/pkg/telemetry"
)

// Runner executes one materialization batch for a date.
type Runner interface {
	Run(ctx context.Context, date time.Time) (*domain.RunReport, error)
}

// Handler exposes the manual-trigger surface: an operator (or a backfill
// script) can fire a batch for any date over HTTP instead of waiting for
// cron.
type Handler struct {
	runner   Runner
	lock     redisstore.RunLock
	location *time.Location
	logger   *slog.Logger
}

func NewHandler(runner Runner, lock redisstore.RunLock, location *time.Location, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, lock: lock, location: location, logger: logger}
}

// Routes builds the router for the trigger API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(h.logger))
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", h.TriggerRun)
	})
	return r
}

// TriggerRunRequest is the JSON body for POST /api/v1/runs. Date is
// optional; empty means today in the service timezone.
type TriggerRunRequest struct {
	Date string `json:"date,omitempty"`
}

// TriggerRun handles POST /api/v1/runs. The batch executes synchronously
// and the full run report is returned; a date whose lock is held by
// another trigger answers 409. An unreachable lock backend does not block
// the trigger: the lock is advisory, the instance store's idempotency key
// keeps a lockless run correct.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("materializer").Start(r.Context(), "api.trigger_run")
	defer span.End()

	var req TriggerRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	date, err := h.resolveDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(attribute.String("run.date", date.Format("2006-01-02")))

	acquired, err := h.lock.TryAcquire(ctx, date)
	switch {
	case err != nil:
		h.logger.Warn("run lock unavailable, proceeding without it",
			slog.String("error", err.Error()),
		)
	case !acquired:
		telemetry.RunsTotal.WithLabelValues("lock_held").Inc()
		writeError(w, http.StatusConflict, "a run for this date is already in progress")
		return
	default:
		defer func() { _ = h.lock.Release(ctx, date) }()
	}

	report, err := h.runner.Run(ctx, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		h.logger.Error("triggered run failed",
			slog.String("date", date.Format("2006-01-02")),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "materialization run failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(report)
}

func (h *Handler) resolveDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().In(h.location)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.location), nil
	}
	date, err := time.ParseInLocation("2006-01-02", s, h.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return date, nil
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz — verifies the lock backend is reachable,
// since a trigger without it would always 500.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	probe := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	if _, err := h.lock.TryAcquire(ctx, probe); err != nil {
		writeError(w, http.StatusServiceUnavailable, "redis not ready")
		return
	}
	_ = h.lock.Release(ctx, probe)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
