// Package materializer expands active recurring task definitions into
// concrete, assignee-specific task instances for one calendar date.
package materializer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/crewboard/materializer/internal/domain"
	"github.com/crewboard/materializer/internal/notify"
	"github.com/crewboard/materializer/internal/postgres"
	"github.com/crewboard/materializer/internal/recurrence"
	"github.com/crewboard/materializer/pkg/telemetry"
)

// Engine orchestrates one materialization run: evaluate recurrence, resolve
// assignees, apply exceptions, insert instances, dispatch notifications.
// It holds no mutable state between runs; all coordination happens through
// the instance store's idempotency key, so a run may be repeated or raced
// without duplicating work.
type Engine struct {
	definitions postgres.DefinitionRepository
	directory   postgres.PersonnelDirectory
	exceptions  postgres.ExceptionRepository
	instances   postgres.InstanceRepository
	runs        postgres.RunRepository // nil = run history disabled
	notifier    notify.Notifier

	defConcurrency  int
	unitConcurrency int
	unitTimeout     time.Duration
	logger          *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithDefinitionConcurrency bounds how many definitions are processed in parallel.
func WithDefinitionConcurrency(n int) Option { return func(e *Engine) { e.defConcurrency = n } }

// WithAssigneeConcurrency bounds the per-definition assignee worker pool.
func WithAssigneeConcurrency(n int) Option { return func(e *Engine) { e.unitConcurrency = n } }

// WithUnitTimeout bounds each assignee's read-check-write sequence so one
// stuck store call cannot starve the whole batch.
func WithUnitTimeout(d time.Duration) Option { return func(e *Engine) { e.unitTimeout = d } }

// WithRunRecorder persists each run's report for operator diagnostics.
func WithRunRecorder(r postgres.RunRepository) Option { return func(e *Engine) { e.runs = r } }

// NewEngine constructs an Engine with the given dependencies and options.
func NewEngine(
	definitions postgres.DefinitionRepository,
	directory postgres.PersonnelDirectory,
	exceptions postgres.ExceptionRepository,
	instances postgres.InstanceRepository,
	notifier notify.Notifier,
	opts ...Option,
) *Engine {
	e := &Engine{
		definitions:     definitions,
		directory:       directory,
		exceptions:      exceptions,
		instances:       instances,
		notifier:        notifier,
		defConcurrency:  4,
		unitConcurrency: 8,
		unitTimeout:     15 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run materializes instances for the given date. The date is passed in
// explicitly — the engine never reads the wall clock to decide what "today"
// is — so a run is a pure function of (stored state, date).
//
// Individual definition and assignee failures are isolated, counted, and
// collected in the returned report; only a failure to list the active
// definitions aborts the run.
func (e *Engine) Run(ctx context.Context, date time.Time) (*domain.RunReport, error) {
	date = domain.DateOf(date)

	ctx, span := otel.Tracer("materializer").Start(ctx, "materializer.run")
	defer span.End()
	span.SetAttributes(attribute.String("run.date", date.Format("2006-01-02")))

	rep := newReportBuilder(uuid.New().String(), date)
	log := e.logger.With(slog.String("run_date", date.Format("2006-01-02")))
	log.Info("materialization run starting", slog.String("run_id", rep.runID))

	defs, err := e.definitions.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list active definitions failed")
		telemetry.RunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("list active definitions: %w", err)
	}

	start := time.Now()
	sem := make(chan struct{}, e.defConcurrency)
	var wg sync.WaitGroup
	for _, def := range defs {
		wg.Add(1)
		sem <- struct{}{}
		go func(def *domain.TaskDefinition) {
			defer wg.Done()
			defer func() { <-sem }()
			e.processDefinition(ctx, def, date, rep)
		}(def)
	}
	wg.Wait()

	report := rep.finish()
	telemetry.RunDurationSeconds.Observe(time.Since(start).Seconds())
	telemetry.RunsTotal.WithLabelValues("completed").Inc()

	if e.runs != nil {
		if err := e.runs.RecordRun(ctx, report); err != nil {
			// Run history is diagnostics, not correctness.
			log.Error("failed to record run report", slog.String("error", err.Error()))
		}
	}

	log.Info("materialization run finished",
		slog.Int64("definitions_evaluated", report.DefinitionsEvaluated),
		slog.Int64("definitions_due", report.DefinitionsDue),
		slog.Int64("instances_created", report.InstancesCreated),
		slog.Int64("suppressed", report.Suppressed),
		slog.Int64("already_materialized", report.AlreadyMaterialized),
		slog.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// processDefinition walks one definition through
// Evaluated → Resolved → Materialized/SkippedDay, isolating its failures
// from sibling definitions.
func (e *Engine) processDefinition(ctx context.Context, def *domain.TaskDefinition, date time.Time, rep *reportBuilder) {
	ctx, span := otel.Tracer("materializer").Start(ctx, "materializer.definition")
	defer span.End()
	span.SetAttributes(attribute.String("definition.id", def.ID))

	rep.evaluated.Add(1)
	telemetry.DefinitionsEvaluated.Inc()

	// Not due today: terminal, no side effects, no log noise.
	if !recurrence.Fires(def.Recurrence, date) {
		return
	}
	rep.due.Add(1)
	telemetry.DefinitionsDue.Inc()

	log := e.logger.With(
		slog.String("definition_id", def.ID),
		slog.String("run_date", date.Format("2006-01-02")),
	)

	// One skip-date check per definition; a hit suppresses every assignee
	// regardless of leave entries, so assignee expansion is skipped entirely.
	skipped, err := e.exceptions.SkipExists(ctx, def.ID, date)
	if err != nil {
		span.RecordError(err)
		rep.addError(def.ID, "", err)
		telemetry.UnitErrors.WithLabelValues("skip_check").Inc()
		log.Error("skip date lookup failed", slog.String("error", err.Error()))
		return
	}
	if skipped {
		rep.skipped.Add(1)
		log.Info("skip date set, generation suppressed for definition")
		return
	}

	assignees, err := e.resolveAssignees(ctx, def)
	if err != nil {
		span.RecordError(err)
		rep.addError(def.ID, "", err)
		telemetry.UnitErrors.WithLabelValues("resolve").Inc()
		log.Error("assignee resolution failed", slog.String("error", err.Error()))
		return
	}
	if len(assignees) == 0 {
		log.Warn("definition resolved to zero assignees")
		return
	}

	// Each assignee is an independent read-check-write unit; one failure
	// never blocks the siblings.
	sem := make(chan struct{}, e.unitConcurrency)
	var wg sync.WaitGroup
	for _, assigneeID := range assignees {
		wg.Add(1)
		sem <- struct{}{}
		go func(assigneeID string) {
			defer wg.Done()
			defer func() { <-sem }()
			e.processAssignee(ctx, def, date, assigneeID, rep)
		}(assigneeID)
	}
	wg.Wait()
}

// processAssignee applies exception resolution and idempotent insertion for
// one (definition, date, assignee) unit.
func (e *Engine) processAssignee(ctx context.Context, def *domain.TaskDefinition, date time.Time, assigneeID string, rep *reportBuilder) {
	ctx, cancel := context.WithTimeout(ctx, e.unitTimeout)
	defer cancel()

	ctx, span := otel.Tracer("materializer").Start(ctx, "materializer.assignee")
	defer span.End()
	span.SetAttributes(
		attribute.String("definition.id", def.ID),
		attribute.String("assignee.id", assigneeID),
	)

	log := e.logger.With(
		slog.String("definition_id", def.ID),
		slog.String("assignee_id", assigneeID),
		slog.String("run_date", date.Format("2006-01-02")),
	)

	outcome, err := e.applyExceptions(ctx, def.ID, date, assigneeID)
	if err != nil {
		span.RecordError(err)
		rep.addError(def.ID, assigneeID, err)
		telemetry.UnitErrors.WithLabelValues("exceptions").Inc()
		log.Error("leave date lookup failed", slog.String("error", err.Error()))
		return
	}

	switch outcome.Kind {
	case domain.OutcomeSuppress:
		rep.suppressed.Add(1)
		telemetry.AssigneesSuppressed.Inc()
		log.Info("assignee on leave without delegate, suppressed")
		return
	case domain.OutcomeRedirect:
		log.Info("assignee on leave, redirecting to delegate",
			slog.String("delegate_id", outcome.AssigneeID),
		)
	}
	finalID := outcome.AssigneeID

	exists, err := e.instances.Exists(ctx, def.ID, finalID, date)
	if err != nil {
		span.RecordError(err)
		rep.addError(def.ID, finalID, err)
		telemetry.UnitErrors.WithLabelValues("insert").Inc()
		log.Error("instance existence check failed", slog.String("error", err.Error()))
		return
	}
	if exists {
		rep.already.Add(1)
		telemetry.InstancesAlreadyMaterialized.Inc()
		return
	}

	defID := def.ID
	inst := &domain.TaskInstance{
		ID:           uuid.New().String(),
		DefinitionID: &defID,
		OrgID:        def.OrgID,
		PersonnelID:  finalID,
		AuthorID:     def.CreatorID,
		Description:  def.Description, // snapshot; later edits don't propagate
		Deadline:     def.DeadlineOn(date),
		Status:       domain.StatusOpen,
		CreatedAt:    time.Now().UTC(),
	}

	inserted, err := e.instances.InsertIfAbsent(ctx, inst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "instance insert failed")
		rep.addError(def.ID, finalID, err)
		telemetry.UnitErrors.WithLabelValues("insert").Inc()
		log.Error("instance insert failed", slog.String("error", err.Error()))
		return
	}
	if !inserted {
		// A concurrent worker won the race for this key. Expected, benign.
		rep.already.Add(1)
		telemetry.InstancesAlreadyMaterialized.Inc()
		return
	}

	rep.created.Add(1)
	telemetry.InstancesCreated.Inc()
	log.Info("instance materialized", slog.String("instance_id", inst.ID))

	e.notifier.TaskAssigned(ctx, domain.Notification{
		RecipientID: finalID,
		OrgID:       def.OrgID,
		Type:        domain.NotificationTypeTaskAssigned,
		Title:       "New task assigned",
		Message:     fmt.Sprintf("You have been assigned %q, due %s.", def.Name, inst.Deadline.Format("Jan 2 15:04")),
		Link:        "/tasks/" + inst.ID,
	})
}
