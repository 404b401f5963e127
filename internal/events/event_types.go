package events

import (
	"time"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketClassified    EventType = "ticket_classified"
	EventTicketCommented     EventType = "ticket_commented"
	EventSLAWarning          EventType = "sla_warning"
	EventSLAViolation        EventType = "sla_violation"
)

// Source says which part of the system produced an event.
type Source string

const (
	SourceAPI     Source = "api"
	SourceMail    Source = "mail"
	SourceMonitor Source = "sla_monitor"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Source Source  `json:"source"`
	UserID *string `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services. Ticket is a snapshot taken after
// the change was committed.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TicketID  string         `json:"ticket_id"`
	Ticket    *domain.Ticket `json:"-"`
	Actor     Actor          `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   interface{}    `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title  string `json:"title"`
	Source Source `json:"source"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TechnicianID         string  `json:"technician_id"`
	PreviousTechnicianID *string `json:"previous_technician_id,omitempty"`
	Reassigned           bool    `json:"reassigned"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketClassifiedPayload payload.
type TicketClassifiedPayload struct {
	OldUrgency    *domain.Urgency `json:"old_urgency,omitempty"`
	NewUrgency    domain.Urgency  `json:"new_urgency"`
	ProblemTypeID *string         `json:"problem_type_id,omitempty"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	Comment string `json:"comment"`
}

// SLAPayload carries a committed warning or violation.
type SLAPayload struct {
	Kind     domain.SLAEventKind `json:"kind"`
	Phase    domain.SLAPhase     `json:"phase"`
	Deadline time.Time           `json:"deadline"`
	Level    int                 `json:"level,omitempty"`
	TimeInfo string              `json:"time_info"`
}
