package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/notify"
	"github.com/spec-kit/sla-monitor/internal/observability"
	"github.com/spec-kit/sla-monitor/internal/repository"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

// NotificationService turns committed domain events into per-recipient e-mails on the
// outbound queue. It never sends inline: a slow relay cannot stall a scan.
type NotificationService struct {
	dispatcher events.Dispatcher
	users      repository.UserRepository
	queue      notify.Queue
	renderer   *notify.Renderer
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, users repository.UserRepository, queue notify.Queue, renderer *notify.Renderer, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		users:      users,
		queue:      queue,
		renderer:   renderer,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSLAWarning, n.handleSLAEvent)
	n.dispatcher.Subscribe(events.EventSLAViolation, n.handleSLAEvent)
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketCommented, n.handleTicketCommented)
}

// ResolveSLARecipients returns the active supervisors and monitors plus the assigned
// technician, deduplicated by id, in that order.
func (n *NotificationService) ResolveSLARecipients(ctx context.Context, ticket domain.Ticket) ([]domain.User, error) {
	watchers, err := n.users.ListActiveByRoles(ctx, domain.SLAWatcherRoles)
	if err != nil {
		return nil, fmt.Errorf("list sla watchers: %w", err)
	}

	seen := make(map[string]struct{}, len(watchers)+1)
	recipients := make([]domain.User, 0, len(watchers)+1)
	for _, u := range watchers {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		recipients = append(recipients, u)
	}

	if ticket.TechnicianID != nil {
		if _, dup := seen[*ticket.TechnicianID]; !dup {
			tech, err := n.users.GetByID(ctx, *ticket.TechnicianID)
			switch {
			case err == nil:
				recipients = append(recipients, *tech)
			case apperrors.IsNotFound(err):
				n.logger.Warn("assigned technician not found",
					zap.String("ticket_id", ticket.ID), zap.String("technician_id", *ticket.TechnicianID))
			default:
				return nil, fmt.Errorf("load technician: %w", err)
			}
		}
	}
	return recipients, nil
}

func (n *NotificationService) handleSLAEvent(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLAPayload)
	if !ok || event.Ticket == nil {
		return fmt.Errorf("sla event %s: unexpected payload %T", event.ID, event.Payload)
	}
	ticket := *event.Ticket

	recipients, err := n.ResolveSLARecipients(ctx, ticket)
	if err != nil {
		n.logger.Error("resolve sla recipients", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return err
	}

	tmpl := notify.TemplateSLAWarning
	if payload.Kind == domain.SLAEventViolation {
		tmpl = notify.TemplateSLAViolation
	}
	subject := notify.SLASubject(payload.Kind, payload.Phase, ticket.ID, ticket.Title)
	data := notify.TemplateData{
		TicketID:   ticket.ID,
		Title:      ticket.Title,
		Urgency:    urgencyLabel(ticket.Urgency),
		PhaseLabel: notify.PhaseLabel(payload.Phase),
		Deadline:   payload.Deadline.UTC().Format("2006-01-02 15:04"),
		TimeInfo:   payload.TimeInfo,
	}

	var errs []error
	for _, u := range recipients {
		if err := n.enqueue(ctx, string(event.Type), u, subject, tmpl, data, ticket.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	if event.Ticket == nil {
		return nil
	}
	// Mailed-in tickets are not acknowledged by mail; a reply would land in the inbox again.
	if payload, ok := event.Payload.(events.TicketCreatedPayload); ok && payload.Source == events.SourceMail {
		return nil
	}
	ticket := *event.Ticket
	creator, ok := n.lookup(ctx, ticket.ID, ticket.CreatorID)
	if !ok {
		return nil
	}
	subject := fmt.Sprintf("Ticket #%s created: %s", ticket.ID, ticket.Title)
	return n.enqueue(ctx, string(event.Type), *creator, subject, notify.TemplateTicketCreated, notify.TemplateData{
		TicketID: ticket.ID,
		Title:    ticket.Title,
		Status:   string(ticket.Status),
	}, ticket.ID)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok || event.Ticket == nil {
		return fmt.Errorf("assignment event %s: unexpected payload %T", event.ID, event.Payload)
	}
	ticket := *event.Ticket
	tech, ok := n.lookup(ctx, ticket.ID, payload.TechnicianID)
	if !ok {
		return nil
	}
	base := notify.TemplateData{
		TicketID:       ticket.ID,
		Title:          ticket.Title,
		Urgency:        urgencyLabel(ticket.Urgency),
		TechnicianName: tech.DisplayName(),
	}

	var errs []error
	techData := base
	techData.ForTechnician = true
	errs = append(errs, n.enqueue(ctx, string(event.Type), *tech,
		fmt.Sprintf("Ticket #%s assigned to you: %s", ticket.ID, ticket.Title),
		notify.TemplateTicketAssigned, techData, ticket.ID))

	others := []string{ticket.CreatorID}
	if payload.Reassigned && payload.PreviousTechnicianID != nil {
		others = append(others, *payload.PreviousTechnicianID)
	}
	for _, id := range others {
		if id == tech.ID {
			continue
		}
		u, ok := n.lookup(ctx, ticket.ID, id)
		if !ok {
			continue
		}
		errs = append(errs, n.enqueue(ctx, string(event.Type), *u,
			fmt.Sprintf("Ticket #%s assigned to %s: %s", ticket.ID, tech.DisplayName(), ticket.Title),
			notify.TemplateTicketAssigned, base, ticket.ID))
	}
	return errors.Join(errs...)
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok || event.Ticket == nil {
		return fmt.Errorf("status event %s: unexpected payload %T", event.ID, event.Payload)
	}
	ticket := *event.Ticket
	if event.Actor.UserID != nil && *event.Actor.UserID == ticket.CreatorID {
		return nil
	}
	creator, ok := n.lookup(ctx, ticket.ID, ticket.CreatorID)
	if !ok {
		return nil
	}
	subject := fmt.Sprintf("Ticket #%s is now %s: %s", ticket.ID, payload.NewStatus, ticket.Title)
	return n.enqueue(ctx, string(event.Type), *creator, subject, notify.TemplateTicketStatus, notify.TemplateData{
		TicketID:  ticket.ID,
		Title:     ticket.Title,
		Status:    string(payload.NewStatus),
		OldStatus: string(payload.OldStatus),
		Comment:   payload.Comment,
	}, ticket.ID)
}

// handleTicketCommented tells the creator and the assigned technician about a comment
// someone else wrote.
func (n *NotificationService) handleTicketCommented(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCommentedPayload)
	if !ok || event.Ticket == nil {
		return fmt.Errorf("comment event %s: unexpected payload %T", event.ID, event.Payload)
	}
	ticket := *event.Ticket

	ids := []string{ticket.CreatorID}
	if ticket.TechnicianID != nil {
		ids = append(ids, *ticket.TechnicianID)
	}
	author := "someone"
	if event.Actor.UserID != nil {
		if u, ok := n.lookup(ctx, ticket.ID, *event.Actor.UserID); ok {
			author = u.DisplayName()
		}
	}
	subject := fmt.Sprintf("Ticket #%s updated: %s", ticket.ID, ticket.Title)
	data := notify.TemplateData{
		TicketID:   ticket.ID,
		Title:      ticket.Title,
		Status:     string(ticket.Status),
		Comment:    payload.Comment,
		AuthorName: author,
	}

	seen := map[string]struct{}{}
	if event.Actor.UserID != nil {
		seen[*event.Actor.UserID] = struct{}{}
	}
	var errs []error
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		u, ok := n.lookup(ctx, ticket.ID, id)
		if !ok {
			continue
		}
		if err := n.enqueue(ctx, string(event.Type), *u, subject, notify.TemplateTicketComment, data, ticket.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *NotificationService) lookup(ctx context.Context, ticketID, userID string) (*domain.User, bool) {
	if userID == "" {
		return nil, false
	}
	u, err := n.users.GetByID(ctx, userID)
	if err != nil {
		n.logger.Warn("notification recipient unavailable",
			zap.String("ticket_id", ticketID), zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return u, true
}

// enqueue renders and queues one message. Users without an address are skipped.
func (n *NotificationService) enqueue(ctx context.Context, kind string, to domain.User, subject string, tmpl notify.Template, data notify.TemplateData, ticketID string) error {
	if to.Email == "" {
		n.logger.Info("recipient has no email address; skipping",
			zap.String("ticket_id", ticketID), zap.String("user_id", to.ID), zap.String("kind", kind))
		return nil
	}
	data.RecipientName = to.DisplayName()
	body, err := n.renderer.Render(tmpl, data)
	if err != nil {
		return err
	}

	msg := notify.NewMessage(kind, to.Email, to.FullName, subject, body, ticketID)
	if err := n.queue.Enqueue(ctx, msg); err != nil {
		n.metrics.RecordDropped()
		n.logger.Error("notification dropped",
			zap.String("ticket_id", ticketID),
			zap.String("recipient", to.Email),
			zap.String("kind", kind),
			zap.Error(apperrors.Classify(apperrors.ErrNotificationDelivery, "enqueue", err)))
		return err
	}
	n.metrics.RecordEnqueued()
	return nil
}

func urgencyLabel(u *domain.Urgency) string {
	if u == nil {
		return "unclassified"
	}
	return string(*u)
}
