package domain

// OutcomeKind classifies what exception resolution decided for one
// (definition, date, assignee) unit.
type OutcomeKind string

const (
	OutcomeProceed  OutcomeKind = "PROCEED"
	OutcomeRedirect OutcomeKind = "REDIRECT"
	OutcomeSuppress OutcomeKind = "SUPPRESS"
)

// Outcome carries the exception-resolution decision. AssigneeID is the
// final assignee: the original on Proceed, the delegate on Redirect, and
// empty on Suppress.
type Outcome struct {
	Kind       OutcomeKind
	AssigneeID string
}

// Proceed keeps the original assignee.
func Proceed(assigneeID string) Outcome {
	return Outcome{Kind: OutcomeProceed, AssigneeID: assigneeID}
}

// Redirect substitutes the leave entry's delegate for the original assignee.
func Redirect(delegateID string) Outcome {
	return Outcome{Kind: OutcomeRedirect, AssigneeID: delegateID}
}

// Suppress drops generation for this assignee on this date.
func Suppress() Outcome {
	return Outcome{Kind: OutcomeSuppress}
}
