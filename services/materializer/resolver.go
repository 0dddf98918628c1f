package materializer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crewboard/materializer/internal/domain"
)

// resolveAssignees expands a definition's assignment rule into concrete
// personnel ids against a fresh directory snapshot.
//
// Dangling personnel references in a Specific assignment are dropped with a
// warning and never abort the definition; a transient directory failure
// does abort it (and only it), surfacing in the run report.
func (e *Engine) resolveAssignees(ctx context.Context, def *domain.TaskDefinition) ([]string, error) {
	switch a := def.Assignment.(type) {
	case domain.Specific:
		out := make([]string, 0, len(a.PersonnelIDs))
		for _, id := range a.PersonnelIDs {
			ok, err := e.directory.Exists(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("directory lookup for %s: %w", id, err)
			}
			if !ok {
				e.logger.Warn("dropping dangling personnel reference",
					slog.String("definition_id", def.ID),
					slog.String("personnel_id", id),
				)
				continue
			}
			out = append(out, id)
		}
		return out, nil

	case domain.ByRole:
		people, err := e.directory.ListByRole(ctx, def.OrgID, a.Role)
		if err != nil {
			return nil, fmt.Errorf("list personnel by role %s: %w", a.Role, err)
		}
		ids := make([]string, len(people))
		for i, p := range people {
			ids[i] = p.ID
		}
		return ids, nil

	default:
		// The domain decoders make this unreachable for stored data; hitting
		// it means a schema/version mismatch, which should crash loudly.
		panic(fmt.Sprintf("materializer: unknown assignment variant %T", def.Assignment))
	}
}
