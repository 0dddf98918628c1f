package materializer

import (
	"context"
	"time"

	"github.com/crewboard/materializer/internal/domain"
)

// applyExceptions resolves the per-assignee leave state for one date.
// Skip dates are handled earlier, once per definition, so only the leave
// lookup happens here:
//
//	no entry             → Proceed(assignee)
//	entry with delegate  → Redirect(delegate)
//	entry, no delegate   → Suppress
//
// Delegation is single-level: the delegate's own leave entries are not
// consulted. A lookup failure propagates as a per-assignee error, isolated
// from sibling assignees.
func (e *Engine) applyExceptions(ctx context.Context, definitionID string, date time.Time, assigneeID string) (domain.Outcome, error) {
	leave, err := e.exceptions.GetLeave(ctx, definitionID, assigneeID, date)
	if err != nil {
		return domain.Outcome{}, err
	}
	if leave == nil {
		return domain.Proceed(assigneeID), nil
	}
	if leave.DelegateID != nil && *leave.DelegateID != "" {
		return domain.Redirect(*leave.DelegateID), nil
	}
	return domain.Suppress(), nil
}
