package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "NEW"
	TicketStatusAssigned   TicketStatus = "ASSIGNED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusRejected   TicketStatus = "REJECTED"
)

// ActiveTicketStatuses are the states the SLA scan evaluates.
var ActiveTicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusAssigned,
	TicketStatusInProgress,
}

// ParseTicketStatus validates a raw status value.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	status := TicketStatus(raw)
	switch status {
	case TicketStatusNew, TicketStatusAssigned, TicketStatusInProgress,
		TicketStatusResolved, TicketStatusClosed, TicketStatusRejected:
		return status, nil
	default:
		return "", fmt.Errorf("unknown ticket status %q", raw)
	}
}

// IsActive reports whether tickets in this state still run against an SLA clock.
func (s TicketStatus) IsActive() bool {
	switch s {
	case TicketStatusNew, TicketStatusAssigned, TicketStatusInProgress:
		return true
	case TicketStatusResolved, TicketStatusClosed, TicketStatusRejected:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	switch s {
	case TicketStatusNew:
		return next == TicketStatusAssigned || next == TicketStatusRejected
	case TicketStatusAssigned:
		return next == TicketStatusInProgress || next == TicketStatusResolved
	case TicketStatusInProgress:
		return next == TicketStatusResolved
	case TicketStatusResolved:
		return next == TicketStatusClosed
	case TicketStatusClosed, TicketStatusRejected:
		return false
	default:
		return false
	}
}

// Urgency enumerates SLA tiers.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// ParseUrgency validates a raw urgency value.
func ParseUrgency(raw string) (Urgency, error) {
	urgency := Urgency(raw)
	switch urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return urgency, nil
	default:
		return "", fmt.Errorf("unknown urgency %q", raw)
	}
}

// SLAFlags is the escalation state persisted on a ticket.
// WarningLevel holds the smallest threshold (minutes) already notified.
type SLAFlags struct {
	WarningLevel  *int
	ViolationSent bool
}

// Equal compares two flag sets by value.
func (f SLAFlags) Equal(other SLAFlags) bool {
	if f.ViolationSent != other.ViolationSent {
		return false
	}
	if f.WarningLevel == nil || other.WarningLevel == nil {
		return f.WarningLevel == nil && other.WarningLevel == nil
	}
	return *f.WarningLevel == *other.WarningLevel
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID            string
	Title         string
	Description   string
	Status        TicketStatus
	Urgency       *Urgency
	ProblemTypeID *string
	RequesterID   string
	CreatorID     string
	TechnicianID  *string
	CreatedAt     time.Time
	AssignedAt    *time.Time
	ResolvedAt    *time.Time
	SLA           SLAFlags
	UpdatedAt     time.Time
}

// NormalizeTimes converts every timestamp on the ticket to UTC.
func (t *Ticket) NormalizeTimes() {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.AssignedAt = UTCPtr(t.AssignedAt)
	t.ResolvedAt = UTCPtr(t.ResolvedAt)
}

// UTCPtr returns a UTC copy of ts, or nil.
func UTCPtr(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	utc := ts.UTC()
	return &utc
}
