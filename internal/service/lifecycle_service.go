package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/repository"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

const (
	// DefaultMailTitle is used for ingested messages without a subject.
	DefaultMailTitle = "(no subject)"

	maxCommentLength = 4000
)

// LifecycleService coordinates ticket workflows: creation, triage, assignment and
// status changes. Every change leaves a history entry and publishes an event.
type LifecycleService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	history    repository.TicketHistoryRepository
	problems   repository.ProblemTypeRepository
	dispatcher events.Dispatcher
	now        func() time.Time
	logger     *zap.Logger
}

// LifecycleDependencies bundles repositories for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	HistoryRepo repository.TicketHistoryRepository
	ProblemRepo repository.ProblemTypeRepository
	Dispatcher  events.Dispatcher
	Clock       func() time.Time
	Logger      *zap.Logger
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Title       string
	Description string
	RequesterID string
	CreatorID   string
	Source      events.Source
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		history:    deps.HistoryRepo,
		problems:   deps.ProblemRepo,
		dispatcher: deps.Dispatcher,
		now:        clock,
		logger:     logger,
	}
}

// CreateTicket registers a NEW, unclassified ticket.
func (s *LifecycleService) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = DefaultMailTitle
	}
	if input.RequesterID == "" {
		return nil, apperrors.NewValidationError("requester is required", nil)
	}
	creatorID := input.CreatorID
	if creatorID == "" {
		creatorID = input.RequesterID
	}
	source := input.Source
	if source == "" {
		source = events.SourceAPI
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusNew,
		RequesterID: input.RequesterID,
		CreatorID:   creatorID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.record(ctx, &creatorID, ticket.ID, domain.ChangeTypeCreated, nil,
		map[string]any{"status": ticket.Status, "source": source},
		fmt.Sprintf("Ticket created via %s", source))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    events.Actor{Source: source, UserID: &creatorID},
		Payload:  events.TicketCreatedPayload{Title: ticket.Title, Source: source},
	})
	return ticket, nil
}

// Classify sets urgency and problem type; the SLA clock starts applying from here.
func (s *LifecycleService) Classify(ctx context.Context, actorID string, ticketID string, urgency domain.Urgency, problemTypeID *string) (*domain.Ticket, error) {
	if _, err := domain.ParseUrgency(string(urgency)); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"urgency": urgency})
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.IsActive() {
		return nil, apperrors.NewConflict("ticket is closed for triage", map[string]any{"status": ticket.Status})
	}
	if err := s.checkProblemType(ctx, problemTypeID); err != nil {
		return nil, err
	}

	old := ticket.Urgency
	ticket.Urgency = &urgency
	ticket.ProblemTypeID = problemTypeID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.record(ctx, &actorID, ticket.ID, domain.ChangeTypeClassified,
		map[string]any{"urgency": urgencyLabel(old)},
		map[string]any{"urgency": urgency, "problem_type_id": problemTypeID},
		fmt.Sprintf("Urgency set to %s", urgency))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClassified,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    apiActor(actorID),
		Payload:  events.TicketClassifiedPayload{OldUrgency: old, NewUrgency: urgency, ProblemTypeID: problemTypeID},
	})
	return ticket, nil
}

// Assign moves a NEW ticket to ASSIGNED and starts the resolution clock.
func (s *LifecycleService) Assign(ctx context.Context, actorID, ticketID, technicianID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(ticket.Status, domain.TicketStatusAssigned); err != nil {
		return nil, err
	}
	tech, err := s.technician(ctx, technicianID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusAssigned
	ticket.TechnicianID = &tech.ID
	if ticket.AssignedAt == nil {
		ticket.AssignedAt = &now
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.record(ctx, &actorID, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"status": oldStatus, "technician_id": nil},
		map[string]any{"status": ticket.Status, "technician_id": tech.ID},
		fmt.Sprintf("Ticket assigned to %s", tech.DisplayName()))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    apiActor(actorID),
		Payload:  events.TicketAssignedPayload{TechnicianID: tech.ID},
	})
	return ticket, nil
}

// Reassign hands an ASSIGNED or IN_PROGRESS ticket to another technician and restarts
// the resolution clock from now. The warning level already sent is kept.
func (s *LifecycleService) Reassign(ctx context.Context, actorID, ticketID, technicianID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusAssigned && ticket.Status != domain.TicketStatusInProgress {
		return nil, apperrors.NewConflict("only assigned tickets can be reassigned", map[string]any{"status": ticket.Status})
	}
	if ticket.TechnicianID != nil && *ticket.TechnicianID == technicianID {
		return nil, apperrors.NewValidationError("ticket is already assigned to this technician", nil)
	}
	tech, err := s.technician(ctx, technicianID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	previous := ticket.TechnicianID
	ticket.TechnicianID = &tech.ID
	ticket.AssignedAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.record(ctx, &actorID, ticket.ID, domain.ChangeTypeAssignee,
		map[string]any{"technician_id": previous},
		map[string]any{"technician_id": tech.ID},
		fmt.Sprintf("Ticket reassigned to %s", tech.DisplayName()))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    apiActor(actorID),
		Payload: events.TicketAssignedPayload{
			TechnicianID:         tech.ID,
			PreviousTechnicianID: previous,
			Reassigned:           true,
		},
	})
	return ticket, nil
}

// ChangeStatus handles IN_PROGRESS, RESOLVED and CLOSED. Assignment and rejection have
// their own operations.
func (s *LifecycleService) ChangeStatus(ctx context.Context, actorID, ticketID string, next domain.TicketStatus, comment string) (*domain.Ticket, error) {
	switch next {
	case domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed:
	case domain.TicketStatusAssigned:
		return nil, apperrors.NewValidationError("use the assign operation", nil)
	case domain.TicketStatusRejected:
		return nil, apperrors.NewValidationError("use the reject operation", nil)
	default:
		return nil, apperrors.NewValidationError("unsupported status", map[string]any{"status": next})
	}
	return s.transition(ctx, actorID, ticketID, next, comment)
}

// Reject closes a NEW ticket without work.
func (s *LifecycleService) Reject(ctx context.Context, actorID, ticketID, comment string) (*domain.Ticket, error) {
	return s.transition(ctx, actorID, ticketID, domain.TicketStatusRejected, comment)
}

// AddComment appends a free-text update to a ticket without changing its state. Unlike
// the audit entries of other operations, the comment is the change itself, so a failed
// write is returned.
func (s *LifecycleService) AddComment(ctx context.Context, actorID, ticketID, text string) (*domain.TicketHistory, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment is required", nil)
	}
	if len(text) > maxCommentLength {
		return nil, apperrors.NewValidationError("comment is too long", map[string]any{"max_length": maxCommentLength})
	}
	if s.history == nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("ticket history is not configured"))
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	entry := &domain.TicketHistory{
		TicketID:    ticket.ID,
		ChangedByID: &actorID,
		ChangeType:  domain.ChangeTypeComment,
		Comment:     text,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommented,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    apiActor(actorID),
		Payload:  events.TicketCommentedPayload{Comment: text},
	})
	return entry, nil
}

// Get loads one ticket.
func (s *LifecycleService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.load(ctx, ticketID)
}

// List returns tickets in any of statuses, oldest first. No statuses means the active ones.
func (s *LifecycleService) List(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	if len(statuses) == 0 {
		statuses = domain.ActiveTicketStatuses
	}
	return s.tickets.ListByStatuses(ctx, statuses)
}

// History lists the audit trail of a ticket, oldest first.
func (s *LifecycleService) History(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.history.ListByTicket(ctx, ticketID)
}

func (s *LifecycleService) transition(ctx context.Context, actorID, ticketID string, next domain.TicketStatus, comment string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(ticket.Status, next); err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	ticket.Status = next
	if next == domain.TicketStatusResolved {
		now := s.now().UTC()
		ticket.ResolvedAt = &now
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Status changed from %s to %s", oldStatus, next)
	if c := strings.TrimSpace(comment); c != "" {
		note += ": " + c
	}
	s.record(ctx, &actorID, ticket.ID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": next},
		note)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Ticket:   ticket,
		Actor:    apiActor(actorID),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: next,
			Comment:   strings.TrimSpace(comment),
		},
	})
	return ticket, nil
}

func (s *LifecycleService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *LifecycleService) technician(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("technician is required", nil)
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("technician", map[string]any{"id": id})
		}
		return nil, err
	}
	if !user.Active || user.Role != domain.RoleTechnician {
		return nil, apperrors.NewValidationError("user is not an active technician", map[string]any{"id": id})
	}
	return user, nil
}

// ProblemTypes lists the active triage categories.
func (s *LifecycleService) ProblemTypes(ctx context.Context) ([]domain.ProblemType, error) {
	if s.problems == nil {
		return []domain.ProblemType{}, nil
	}
	return s.problems.ListActive(ctx)
}

func (s *LifecycleService) checkProblemType(ctx context.Context, id *string) error {
	if id == nil || s.problems == nil {
		return nil
	}
	pt, err := s.problems.GetByID(ctx, *id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewValidationError("unknown problem type", map[string]any{"problem_type_id": *id})
		}
		return err
	}
	if !pt.IsActive {
		return apperrors.NewValidationError("problem type is inactive", map[string]any{"problem_type_id": *id})
	}
	return nil
}

func checkTransition(from, to domain.TicketStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	return apperrors.NewConflict("invalid status transition", map[string]any{"from": from, "to": to})
}

// record writes an audit entry. The ticket change is already committed, so a failure
// here is logged rather than surfaced.
func (s *LifecycleService) record(ctx context.Context, actorID *string, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any, comment string) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:    ticketID,
		ChangedByID: actorID,
		ChangeType:  change,
		OldValue:    oldValue,
		NewValue:    newValue,
		Comment:     comment,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("write ticket history", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if event.Ticket != nil {
		snapshot := *event.Ticket
		event.Ticket = &snapshot
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func apiActor(userID string) events.Actor {
	return events.Actor{Source: events.SourceAPI, UserID: &userID}
}
