package domain

import "time"

// InstanceStatus is the lifecycle state of a materialized task instance.
type InstanceStatus string

const (
	StatusOpen   InstanceStatus = "OPEN"
	StatusClosed InstanceStatus = "CLOSED"
)

// IsTerminal returns true when no further transitions are possible.
func (s InstanceStatus) IsTerminal() bool { return s == StatusClosed }

// TaskInstance is the concrete, assignee-specific unit of work materialized
// for one date. DefinitionID is nil for instances created manually outside
// the engine. At most one instance exists per
// (DefinitionID, PersonnelID, deadline date) — the idempotency key.
type TaskInstance struct {
	ID           string
	DefinitionID *string
	OrgID        string
	PersonnelID  string
	AuthorID     string
	Description  string
	Deadline     time.Time
	Status       InstanceStatus
	CreatedAt    time.Time
	CompletedAt  *time.Time
	Rating       *int // 1..5, set by the closure workflow
}

// SkipDate suppresses all generation for a definition on one date,
// for every assignee, regardless of leave entries.
type SkipDate struct {
	DefinitionID string
	Date         time.Time
}

// LeaveDate suppresses or redirects generation for one assignee on one
// date. With a delegate the instance is created for the delegate instead;
// without one, generation for that assignee is suppressed. Delegation is
// single-level: a delegate who is also on leave is not re-resolved.
type LeaveDate struct {
	DefinitionID string
	PersonnelID  string
	Date         time.Time
	DelegateID   *string
}

// Notification is the write-only message emitted per created instance.
type Notification struct {
	RecipientID string `json:"recipient_id"`
	OrgID       string `json:"org_id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Link        string `json:"link"`
}

// NotificationTypeTaskAssigned is the only type this engine emits.
const NotificationTypeTaskAssigned = "task_assigned"
