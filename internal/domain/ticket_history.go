package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCreated    TicketChangeType = "CREATED"
	ChangeTypeStatus     TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee   TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypeClassified TicketChangeType = "CLASSIFICATION"
	ChangeTypeComment    TicketChangeType = "COMMENT"
)

// TicketHistory is an immutable audit trail entry with a human readable comment.
type TicketHistory struct {
	ID          string
	TicketID    string
	ChangedByID *string
	ChangeType  TicketChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	Comment     string
	CreatedAt   time.Time
}
