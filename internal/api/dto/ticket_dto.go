package dto

import (
	"time"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// CreateTicketRequest payload. RequesterID is honored for staff only.
type CreateTicketRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	RequesterID *string `json:"requester_id"`
}

// ClassifyTicketRequest payload.
type ClassifyTicketRequest struct {
	Urgency       domain.Urgency `json:"urgency"`
	ProblemTypeID *string        `json:"problem_type_id"`
}

// AssignTicketRequest payload for assign and reassign.
type AssignTicketRequest struct {
	TechnicianID string `json:"technician_id"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Comment string `json:"comment"`
}

// RejectTicketRequest payload.
type RejectTicketRequest struct {
	Comment string `json:"comment"`
}

// TicketResponse is the API view of a ticket.
type TicketResponse struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Status        domain.TicketStatus `json:"status"`
	Urgency       *domain.Urgency     `json:"urgency"`
	ProblemTypeID *string             `json:"problem_type_id"`
	RequesterID   string              `json:"requester_id"`
	CreatorID     string              `json:"creator_id"`
	TechnicianID  *string             `json:"technician_id"`
	CreatedAt     time.Time           `json:"created_at"`
	AssignedAt    *time.Time          `json:"assigned_at"`
	ResolvedAt    *time.Time          `json:"resolved_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// HistoryEntryResponse is one audit entry.
type HistoryEntryResponse struct {
	ID          string                  `json:"id"`
	ChangedByID *string                 `json:"changed_by_id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	OldValue    map[string]any          `json:"old_value"`
	NewValue    map[string]any          `json:"new_value"`
	Comment     string                  `json:"comment"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewTicketResponse maps the domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		Urgency:       t.Urgency,
		ProblemTypeID: t.ProblemTypeID,
		RequesterID:   t.RequesterID,
		CreatorID:     t.CreatorID,
		TechnicianID:  t.TechnicianID,
		CreatedAt:     t.CreatedAt,
		AssignedAt:    t.AssignedAt,
		ResolvedAt:    t.ResolvedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// NewHistoryResponse maps audit entries.
func NewHistoryResponse(entries []domain.TicketHistory) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewHistoryEntryResponse(e))
	}
	return out
}

// NewHistoryEntryResponse maps one audit entry.
func NewHistoryEntryResponse(e domain.TicketHistory) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:          e.ID,
		ChangedByID: e.ChangedByID,
		ChangeType:  e.ChangeType,
		OldValue:    e.OldValue,
		NewValue:    e.NewValue,
		Comment:     e.Comment,
		CreatedAt:   e.CreatedAt,
	}
}
