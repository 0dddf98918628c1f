package materializer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/crewboard/materializer/internal/domain"
)

// reportBuilder accumulates run counters from concurrent workers.
type reportBuilder struct {
	runID   string
	date    time.Time
	started time.Time

	evaluated  atomic.Int64
	due        atomic.Int64
	skipped    atomic.Int64
	created    atomic.Int64
	suppressed atomic.Int64
	already    atomic.Int64

	mu   sync.Mutex
	errs []domain.RunError
}

func newReportBuilder(runID string, date time.Time) *reportBuilder {
	return &reportBuilder{runID: runID, date: date, started: time.Now().UTC()}
}

func (b *reportBuilder) addError(definitionID, personnelID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, domain.RunError{
		DefinitionID: definitionID,
		PersonnelID:  personnelID,
		Message:      err.Error(),
	})
}

func (b *reportBuilder) finish() *domain.RunReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &domain.RunReport{
		RunID:                b.runID,
		Date:                 b.date,
		StartedAt:            b.started,
		FinishedAt:           time.Now().UTC(),
		DefinitionsEvaluated: b.evaluated.Load(),
		DefinitionsDue:       b.due.Load(),
		DefinitionsSkipped:   b.skipped.Load(),
		InstancesCreated:     b.created.Load(),
		Suppressed:           b.suppressed.Load(),
		AlreadyMaterialized:  b.already.Load(),
		Errors:               b.errs,
	}
}
