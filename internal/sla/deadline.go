// Package sla holds the pure SLA arithmetic: which clock a ticket runs against, when it
// expires, and which escalation step (if any) is due.
package sla

import (
	"time"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// Deadline is the target instant of the clock a ticket currently runs against.
type Deadline struct {
	Phase domain.SLAPhase
	At    time.Time
}

// ComputeDeadline returns the deadline for the ticket's current lifecycle phase.
// The boolean is false when no deadline applies and the ticket must be skipped.
func ComputeDeadline(t domain.Ticket, policy domain.SLAPolicy) (Deadline, bool) {
	if t.Urgency == nil {
		return Deadline{}, false
	}

	switch t.Status {
	case domain.TicketStatusNew:
		return Deadline{
			Phase: domain.SLAPhaseAssignment,
			At:    t.CreatedAt.UTC().Add(hours(policy.AssignmentTimeHours)),
		}, true
	case domain.TicketStatusAssigned, domain.TicketStatusInProgress:
		if t.AssignedAt == nil {
			return Deadline{}, false
		}
		return Deadline{
			Phase: domain.SLAPhaseResolution,
			At:    t.AssignedAt.UTC().Add(hours(policy.ResolutionTimeHours)),
		}, true
	case domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusRejected:
		return Deadline{}, false
	default:
		return Deadline{}, false
	}
}

// PolicySet indexes policies by urgency.
type PolicySet map[domain.Urgency]domain.SLAPolicy

// NewPolicySet indexes a policy list; later entries win on duplicate urgency.
func NewPolicySet(policies []domain.SLAPolicy) PolicySet {
	set := make(PolicySet, len(policies))
	for _, p := range policies {
		set[p.Urgency] = p
	}
	return set
}

// DeadlineFor resolves the ticket's policy and computes its deadline.
func (s PolicySet) DeadlineFor(t domain.Ticket) (Deadline, bool) {
	if t.Urgency == nil {
		return Deadline{}, false
	}
	policy, ok := s[*t.Urgency]
	if !ok {
		return Deadline{}, false
	}
	return ComputeDeadline(t, policy)
}

func hours(h int) time.Duration {
	return time.Duration(h) * time.Hour
}
