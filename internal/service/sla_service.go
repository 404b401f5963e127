package service

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/observability"
	"github.com/spec-kit/sla-monitor/internal/repository"
	"github.com/spec-kit/sla-monitor/internal/sla"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

// SLAService evaluates active tickets against their SLA deadlines, persists the
// escalation flags and publishes warnings and violations.
type SLAService struct {
	tickets    repository.TicketRepository
	policies   repository.SLAPolicyRepository
	dispatcher events.Dispatcher
	ladder     *sla.Ladder
	workers    int
	now        func() time.Time
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// SLADependencies bundles collaborators for the SLA service.
type SLADependencies struct {
	TicketRepo repository.TicketRepository
	PolicyRepo repository.SLAPolicyRepository
	Dispatcher events.Dispatcher
	Thresholds []int
	Workers    int
	Clock      func() time.Time
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// ScanResult summarizes one scan iteration.
type ScanResult struct {
	Evaluated  int `json:"evaluated"`
	Skipped    int `json:"skipped"`
	Warnings   int `json:"warnings"`
	Violations int `json:"violations"`
	Failures   int `json:"failures"`
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAService{
		tickets:    deps.TicketRepo,
		policies:   deps.PolicyRepo,
		dispatcher: deps.Dispatcher,
		ladder:     sla.NewLadder(deps.Thresholds),
		workers:    workers,
		now:        clock,
		logger:     logger,
		metrics:    deps.Metrics,
	}
}

// RunSlaScan performs one pass over every active ticket. Only loading the policies or
// the ticket set fails the pass; per-ticket problems are logged and counted.
func (s *SLAService) RunSlaScan(ctx context.Context) (ScanResult, error) {
	start := time.Now()
	result, err := s.scan(ctx)
	s.metrics.RecordScan(err, time.Since(start), result.Evaluated)
	if err == nil {
		s.logger.Info("sla scan finished",
			zap.Int("evaluated", result.Evaluated),
			zap.Int("skipped", result.Skipped),
			zap.Int("warnings", result.Warnings),
			zap.Int("violations", result.Violations),
			zap.Int("failures", result.Failures),
			zap.Duration("elapsed", time.Since(start)))
	}
	return result, err
}

// Run adapts RunSlaScan to the periodic task signature.
func (s *SLAService) Run(ctx context.Context) error {
	_, err := s.RunSlaScan(ctx)
	return err
}

func (s *SLAService) scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	policies, err := s.policies.ListAll(ctx)
	if err != nil {
		return result, apperrors.Classify(apperrors.ErrPersistence, "load sla policies", err)
	}
	policySet := sla.NewPolicySet(policies)

	tickets, err := s.tickets.ListByStatuses(ctx, domain.ActiveTicketStatuses)
	if err != nil {
		return result, apperrors.Classify(apperrors.ErrPersistence, "load active tickets", err)
	}

	now := s.now().UTC()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)

	for i := range tickets {
		if ctx.Err() != nil {
			break
		}
		ticket := tickets[i]
		g.Go(func() error {
			outcome := s.evaluateIsolated(ctx, ticket, policySet, now)
			mu.Lock()
			result.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

type scanOutcome int

const (
	outcomeSkipped scanOutcome = iota
	outcomeQuiet
	outcomeWarning
	outcomeViolation
	outcomeFailed
)

func (r *ScanResult) add(o scanOutcome) {
	switch o {
	case outcomeSkipped:
		r.Skipped++
	case outcomeQuiet:
		r.Evaluated++
	case outcomeWarning:
		r.Evaluated++
		r.Warnings++
	case outcomeViolation:
		r.Evaluated++
		r.Violations++
	case outcomeFailed:
		r.Evaluated++
		r.Failures++
	}
}

// evaluateIsolated runs evaluate on a worker goroutine, where a panic would otherwise
// take the process down. The ticket counts as failed and the scan carries on.
func (s *SLAService) evaluateIsolated(ctx context.Context, ticket domain.Ticket, policies sla.PolicySet, now time.Time) (outcome scanOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordSLAFailure("panic")
			s.logger.Error("sla evaluation panicked",
				zap.String("ticket_id", ticket.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			outcome = outcomeFailed
		}
	}()
	return s.evaluate(ctx, ticket, policies, now)
}

// evaluate handles one ticket: compute, commit the new flags, then publish.
func (s *SLAService) evaluate(ctx context.Context, ticket domain.Ticket, policies sla.PolicySet, now time.Time) scanOutcome {
	deadline, ok := policies.DeadlineFor(ticket)
	if !ok {
		return outcomeSkipped
	}

	decision := s.ladder.Evaluate(ticket.SLA, deadline.At, now)
	if !decision.Fires() {
		return outcomeQuiet
	}

	if err := s.tickets.UpdateSLAFlags(ctx, ticket.ID, ticket.SLA, decision.Next); err != nil {
		if errors.Is(err, repository.ErrStaleSLAFlags) {
			s.logger.Info("sla flags changed concurrently; skipping",
				zap.String("ticket_id", ticket.ID))
			return outcomeSkipped
		}
		s.metrics.RecordSLAFailure("persistence")
		s.logger.Error("persist sla flags",
			zap.String("ticket_id", ticket.ID),
			zap.Error(apperrors.Classify(apperrors.ErrPersistence, "update sla flags", err)))
		return outcomeFailed
	}

	kind := decision.EventKind()
	s.metrics.RecordSLAEvent(string(kind), string(deadline.Phase))
	ticket.SLA = decision.Next
	s.publish(ctx, ticket, deadline, decision)

	if kind == domain.SLAEventViolation {
		return outcomeViolation
	}
	return outcomeWarning
}

func (s *SLAService) publish(ctx context.Context, ticket domain.Ticket, deadline sla.Deadline, decision sla.Decision) {
	if s.dispatcher == nil {
		return
	}
	eventType := events.EventSLAWarning
	if decision.Kind == sla.DecisionViolation {
		eventType = events.EventSLAViolation
	}
	snapshot := ticket
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		Ticket:    &snapshot,
		Actor:     events.Actor{Source: events.SourceMonitor},
		Timestamp: s.now().UTC(),
		Payload: events.SLAPayload{
			Kind:     decision.EventKind(),
			Phase:    deadline.Phase,
			Deadline: deadline.At,
			Level:    decision.Level,
			TimeInfo: decision.TimeInfo(),
		},
	}
	s.logger.Info("sla event",
		zap.String("ticket_id", ticket.ID),
		zap.String("kind", string(decision.EventKind())),
		zap.String("phase", string(deadline.Phase)),
		zap.String("time_info", decision.TimeInfo()))
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("sla notification dispatch failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(apperrors.Classify(apperrors.ErrNotificationDelivery, "publish", err)))
	}
}

// SLAStatus is the read model behind GET /tickets/:id/sla.
type SLAStatus struct {
	TicketID      string              `json:"ticket_id"`
	Status        domain.TicketStatus `json:"status"`
	Applicable    bool                `json:"applicable"`
	Phase         domain.SLAPhase     `json:"phase,omitempty"`
	Deadline      *time.Time          `json:"deadline,omitempty"`
	TimeLeft      string              `json:"time_left,omitempty"`
	Overdue       bool                `json:"overdue"`
	WarningLevel  *int                `json:"warning_level,omitempty"`
	ViolationSent bool                `json:"violation_sent"`
}

// Status reports where a ticket stands against its current SLA clock.
func (s *SLAService) Status(ctx context.Context, ticketID string) (*SLAStatus, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	policies, err := s.policies.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	out := &SLAStatus{
		TicketID:      ticket.ID,
		Status:        ticket.Status,
		WarningLevel:  ticket.SLA.WarningLevel,
		ViolationSent: ticket.SLA.ViolationSent,
	}
	deadline, ok := sla.NewPolicySet(policies).DeadlineFor(*ticket)
	if !ok {
		return out, nil
	}
	left := deadline.At.Sub(s.now().UTC())
	at := deadline.At
	out.Applicable = true
	out.Phase = deadline.Phase
	out.Deadline = &at
	out.Overdue = left <= 0
	out.TimeLeft = sla.FormatOverdue(left)
	return out, nil
}
