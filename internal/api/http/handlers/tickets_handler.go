package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-monitor/internal/api/dto"
	"github.com/spec-kit/sla-monitor/internal/auth"
	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/service"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
	sla       *service.SLAService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService, slaService *service.SLAService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle, sla: slaService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		return apperrors.NewValidationError("title and description required", nil)
	}

	requesterID := principal.User.ID
	if req.RequesterID != nil && *req.RequesterID != "" && principal.Role() != domain.RoleSelfService {
		requesterID = *req.RequesterID
	}
	ticket, err := h.lifecycle.CreateTicket(c.UserContext(), service.CreateTicketInput{
		Title:       req.Title,
		Description: req.Description,
		RequesterID: requesterID,
		CreatorID:   principal.User.ID,
		Source:      events.SourceAPI,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets?status=NEW,ASSIGNED. Self-service callers only see their own.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return err
	}
	tickets, err := h.lifecycle.List(c.UserContext(), statuses)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		if !canView(principal, &tickets[i]) {
			continue
		}
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.visibleTicket(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	ticket, err := h.visibleTicket(c)
	if err != nil {
		return err
	}
	entries, err := h.lifecycle.History(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponse(entries)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.visibleTicket(c)
	if err != nil {
		return err
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := h.lifecycle.AddComment(c.UserContext(), principal.User.ID, ticket.ID, req.Comment)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewHistoryEntryResponse(*entry)})
}

// SLAStatus GET /tickets/:id/sla.
func (h *TicketsHandler) SLAStatus(c *fiber.Ctx) error {
	ticket, err := h.visibleTicket(c)
	if err != nil {
		return err
	}
	status, err := h.sla.Status(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": status})
}

// Classify POST /tickets/:id/classify.
func (h *TicketsHandler) Classify(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ClassifyTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Classify(c.UserContext(), principal.User.ID, c.Params("id"), req.Urgency, req.ProblemTypeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	return h.assign(c, h.lifecycle.Assign)
}

// Reassign POST /tickets/:id/reassign.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	return h.assign(c, h.lifecycle.Reassign)
}

func (h *TicketsHandler) assign(c *fiber.Ctx, op func(ctx context.Context, actorID, ticketID, technicianID string) (*domain.Ticket, error)) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := op(c.UserContext(), principal.User.ID, c.Params("id"), strings.TrimSpace(req.TechnicianID))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ChangeStatus POST /tickets/:id/status. Technicians may only move their own tickets.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if principal.Role() == domain.RoleTechnician {
		ticket, err := h.lifecycle.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		if ticket.TechnicianID == nil || *ticket.TechnicianID != principal.User.ID {
			return apperrors.NewForbidden("ticket is assigned to another technician")
		}
	}
	ticket, err := h.lifecycle.ChangeStatus(c.UserContext(), principal.User.ID, c.Params("id"), req.Status, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Reject POST /tickets/:id/reject.
func (h *TicketsHandler) Reject(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RejectTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.lifecycle.Reject(c.UserContext(), principal.User.ID, c.Params("id"), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ProblemTypes GET /problem-types.
func (h *TicketsHandler) ProblemTypes(c *fiber.Ctx) error {
	types, err := h.lifecycle.ProblemTypes(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]fiber.Map, 0, len(types))
	for _, pt := range types {
		items = append(items, fiber.Map{"id": pt.ID, "name": pt.Name, "description": pt.Description})
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *TicketsHandler) visibleTicket(c *fiber.Ctx) (*domain.Ticket, error) {
	principal, err := requirePrincipal(c)
	if err != nil {
		return nil, err
	}
	ticket, err := h.lifecycle.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if !canView(principal, ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": c.Params("id")})
	}
	return ticket, nil
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func canView(p *auth.Principal, t *domain.Ticket) bool {
	if p.Role() != domain.RoleSelfService {
		return true
	}
	return t.RequesterID == p.User.ID || t.CreatorID == p.User.ID
}

func parseStatuses(raw string) ([]domain.TicketStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var out []domain.TicketStatus
	for _, part := range strings.Split(raw, ",") {
		status, err := domain.ParseTicketStatus(strings.ToUpper(strings.TrimSpace(part)))
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error(), nil)
		}
		out = append(out, status)
	}
	return out, nil
}
