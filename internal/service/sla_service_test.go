package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/notify"
	"github.com/spec-kit/sla-monitor/internal/repository"
	"github.com/spec-kit/sla-monitor/internal/repository/memory"
	"github.com/spec-kit/sla-monitor/internal/sla"
)

type slaFixture struct {
	clock    *fakeClock
	tickets  *memory.Tickets
	users    *memory.Users
	queue    *notify.MemoryQueue
	recorder *recorder
	svc      *SLAService
}

func newSLAFixture(t *testing.T, repo repository.TicketRepository) *slaFixture {
	t.Helper()
	f := &slaFixture{
		clock:    newFakeClock(t0),
		tickets:  memory.NewTickets(),
		users:    memory.NewUsers(staff()...),
		queue:    notify.NewMemoryQueue(64),
		recorder: &recorder{},
	}
	if repo == nil {
		repo = f.tickets
	}
	d := events.NewInMemoryDispatcher()
	subscribeAll(d, f.recorder)
	newNotifier(t, d, f.users, f.queue)
	f.svc = NewSLAService(SLADependencies{
		TicketRepo: repo,
		PolicyRepo: memory.NewPolicies(memory.DefaultPolicies()...),
		Dispatcher: d,
		Thresholds: sla.DefaultThresholds,
		Workers:    4,
		Clock:      f.clock.Now,
		Logger:     zaptest.NewLogger(t),
	})
	return f
}

func (f *slaFixture) scanAt(t *testing.T, offset time.Duration) ScanResult {
	t.Helper()
	f.clock.Set(t0.Add(offset))
	f.recorder.reset()
	res, err := f.svc.RunSlaScan(context.Background())
	require.NoError(t, err)
	return res
}

func TestRunSlaScanEscalatesNewHighTicket(t *testing.T) {
	f := newSLAFixture(t, nil)
	ticket := &domain.Ticket{
		Title:       "Printer down",
		Status:      domain.TicketStatusNew,
		Urgency:     urgency(domain.UrgencyHigh),
		RequesterID: "req-1",
		CreatorID:   "req-1",
		CreatedAt:   t0,
	}
	require.NoError(t, f.tickets.Create(context.Background(), ticket))

	steps := []struct {
		offset     time.Duration
		event      events.EventType
		level      int
		timeInfo   string
		warnings   int
		violations int
	}{
		{offset: 20 * time.Minute},
		{offset: 35 * time.Minute, event: events.EventSLAWarning, level: 30, timeInfo: "30 minutes", warnings: 1},
		{offset: 40 * time.Minute},
		{offset: 50 * time.Minute, event: events.EventSLAWarning, level: 15, timeInfo: "15 minutes", warnings: 1},
		{offset: 56 * time.Minute, event: events.EventSLAWarning, level: 5, timeInfo: "5 minutes", warnings: 1},
		{offset: 61 * time.Minute, event: events.EventSLAViolation, timeInfo: "0h 1m", violations: 1},
		{offset: 90 * time.Minute},
		{offset: 5 * time.Hour},
	}

	for _, step := range steps {
		res := f.scanAt(t, step.offset)
		assert.Equal(t, 1, res.Evaluated, "offset %s", step.offset)
		assert.Equal(t, step.warnings, res.Warnings, "offset %s", step.offset)
		assert.Equal(t, step.violations, res.Violations, "offset %s", step.offset)

		published := f.recorder.snapshot()
		msgs := drain(f.queue)
		if step.event == "" {
			assert.Empty(t, published, "offset %s", step.offset)
			assert.Empty(t, msgs, "offset %s", step.offset)
			continue
		}
		require.Len(t, published, 1, "offset %s", step.offset)
		payload, ok := published[0].Payload.(events.SLAPayload)
		require.True(t, ok)
		assert.Equal(t, step.event, published[0].Type)
		assert.Equal(t, domain.SLAPhaseAssignment, payload.Phase)
		assert.Equal(t, step.level, payload.Level)
		assert.Equal(t, step.timeInfo, payload.TimeInfo)
		assert.Equal(t, t0.Add(time.Hour), payload.Deadline)
		// unassigned: watchers only, inactive monitor excluded
		assert.ElementsMatch(t, []string{"sofia@example.com", "mateo@example.com"}, recipients(msgs))
	}

	stored, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SLA.WarningLevel)
	assert.Equal(t, 5, *stored.SLA.WarningLevel)
	assert.True(t, stored.SLA.ViolationSent)
}

func TestRunSlaScanSkipsUnclassifiedTickets(t *testing.T) {
	f := newSLAFixture(t, nil)
	require.NoError(t, f.tickets.Create(context.Background(), &domain.Ticket{
		Title:       "Unclassified",
		Status:      domain.TicketStatusNew,
		RequesterID: "req-1",
		CreatorID:   "req-1",
		CreatedAt:   t0.Add(-30 * 24 * time.Hour),
	}))

	res := f.scanAt(t, 0)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Evaluated)
	assert.Empty(t, f.recorder.snapshot())
	assert.Zero(t, f.queue.Len())
}

func TestRunSlaScanIgnoresClosedTickets(t *testing.T) {
	f := newSLAFixture(t, nil)
	resolvedAt := t0.Add(-time.Hour)
	require.NoError(t, f.tickets.Create(context.Background(), &domain.Ticket{
		Title:       "Done",
		Status:      domain.TicketStatusResolved,
		Urgency:     urgency(domain.UrgencyHigh),
		RequesterID: "req-1",
		CreatorID:   "req-1",
		CreatedAt:   t0.Add(-48 * time.Hour),
		ResolvedAt:  &resolvedAt,
	}))

	res := f.scanAt(t, 0)
	assert.Equal(t, ScanResult{}, res)
}

func TestRunSlaScanResolutionPhaseNotifiesTechnician(t *testing.T) {
	f := newSLAFixture(t, nil)
	assignedAt := t0
	tech := "tech-1"
	require.NoError(t, f.tickets.Create(context.Background(), &domain.Ticket{
		Title:        "VPN",
		Status:       domain.TicketStatusInProgress,
		Urgency:      urgency(domain.UrgencyMedium),
		RequesterID:  "req-1",
		CreatorID:    "req-1",
		TechnicianID: &tech,
		CreatedAt:    t0.Add(-2 * time.Hour),
		AssignedAt:   &assignedAt,
	}))

	f.scanAt(t, 24*time.Hour+65*time.Minute)
	published := f.recorder.snapshot()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventSLAViolation, published[0].Type)
	payload := published[0].Payload.(events.SLAPayload)
	assert.Equal(t, domain.SLAPhaseResolution, payload.Phase)
	assert.Equal(t, "1h 5m", payload.TimeInfo)
	assert.ElementsMatch(t,
		[]string{"sofia@example.com", "mateo@example.com", "tomas@example.com"},
		recipients(drain(f.queue)))
}

func TestRunSlaScanPublishesAfterCommit(t *testing.T) {
	f := newSLAFixture(t, nil)
	ticket := &domain.Ticket{
		Title:       "Commit order",
		Status:      domain.TicketStatusNew,
		Urgency:     urgency(domain.UrgencyHigh),
		RequesterID: "req-1",
		CreatorID:   "req-1",
		CreatedAt:   t0,
	}
	require.NoError(t, f.tickets.Create(context.Background(), ticket))

	d := events.NewInMemoryDispatcher()
	var seen *domain.SLAFlags
	d.Subscribe(events.EventSLAWarning, func(ctx context.Context, e events.Event) error {
		stored, err := f.tickets.GetByID(ctx, e.TicketID)
		if err != nil {
			return err
		}
		seen = &stored.SLA
		return nil
	})
	f.svc.dispatcher = d

	f.scanAt(t, 40*time.Minute)
	require.NotNil(t, seen)
	require.NotNil(t, seen.WarningLevel)
	assert.Equal(t, 30, *seen.WarningLevel)
}

type failingFlags struct {
	*memory.Tickets
	failFor string
}

func (f *failingFlags) UpdateSLAFlags(ctx context.Context, id string, prev, next domain.SLAFlags) error {
	if id == f.failFor {
		return errors.New("connection reset by peer")
	}
	return f.Tickets.UpdateSLAFlags(ctx, id, prev, next)
}

func TestRunSlaScanContinuesAfterPersistenceFailure(t *testing.T) {
	tickets := memory.NewTickets()
	bad := &domain.Ticket{ID: "bad", Title: "A", Status: domain.TicketStatusNew, Urgency: urgency(domain.UrgencyHigh), RequesterID: "req-1", CreatorID: "req-1", CreatedAt: t0}
	good := &domain.Ticket{ID: "good", Title: "B", Status: domain.TicketStatusNew, Urgency: urgency(domain.UrgencyHigh), RequesterID: "req-1", CreatorID: "req-1", CreatedAt: t0}
	require.NoError(t, tickets.Create(context.Background(), bad))
	require.NoError(t, tickets.Create(context.Background(), good))

	f := newSLAFixture(t, &failingFlags{Tickets: tickets, failFor: "bad"})
	res := f.scanAt(t, 2*time.Hour)

	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 1, res.Violations)

	published := f.recorder.snapshot()
	require.Len(t, published, 1)
	assert.Equal(t, "good", published[0].TicketID)

	stored, err := tickets.GetByID(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, stored.SLA.ViolationSent)
}

type panickyFlags struct {
	*memory.Tickets
	panicFor string
}

func (p *panickyFlags) UpdateSLAFlags(ctx context.Context, id string, prev, next domain.SLAFlags) error {
	if id == p.panicFor {
		panic("malformed row")
	}
	return p.Tickets.UpdateSLAFlags(ctx, id, prev, next)
}

func TestRunSlaScanRecoversFromPanickingTicket(t *testing.T) {
	tickets := memory.NewTickets()
	bad := &domain.Ticket{ID: "bad", Title: "A", Status: domain.TicketStatusNew, Urgency: urgency(domain.UrgencyHigh), RequesterID: "req-1", CreatorID: "req-1", CreatedAt: t0}
	good := &domain.Ticket{ID: "good", Title: "B", Status: domain.TicketStatusNew, Urgency: urgency(domain.UrgencyHigh), RequesterID: "req-1", CreatorID: "req-1", CreatedAt: t0}
	require.NoError(t, tickets.Create(context.Background(), bad))
	require.NoError(t, tickets.Create(context.Background(), good))

	f := newSLAFixture(t, &panickyFlags{Tickets: tickets, panicFor: "bad"})
	res := f.scanAt(t, 2*time.Hour)

	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 1, res.Violations)

	published := f.recorder.snapshot()
	require.Len(t, published, 1)
	assert.Equal(t, "good", published[0].TicketID)
	assert.Equal(t, events.EventSLAViolation, published[0].Type)

	stored, err := tickets.GetByID(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, stored.SLA.ViolationSent)

	// the next pass retries the failed ticket and leaves the notified one alone
	f.svc = NewSLAService(SLADependencies{
		TicketRepo: tickets,
		PolicyRepo: memory.NewPolicies(memory.DefaultPolicies()...),
		Dispatcher: events.NewInMemoryDispatcher(),
		Clock:      f.clock.Now,
		Logger:     zaptest.NewLogger(t),
	})
	res = f.scanAt(t, 2*time.Hour)
	assert.Equal(t, 1, res.Violations)
	stored, err = tickets.GetByID(context.Background(), "bad")
	require.NoError(t, err)
	assert.True(t, stored.SLA.ViolationSent)
}

type staleFlags struct {
	*memory.Tickets
}

func (s *staleFlags) UpdateSLAFlags(ctx context.Context, id string, prev, next domain.SLAFlags) error {
	return repository.ErrStaleSLAFlags
}

func TestRunSlaScanSkipsConcurrentlyUpdatedTicket(t *testing.T) {
	tickets := memory.NewTickets()
	require.NoError(t, tickets.Create(context.Background(), &domain.Ticket{
		Title: "Raced", Status: domain.TicketStatusNew, Urgency: urgency(domain.UrgencyHigh),
		RequesterID: "req-1", CreatorID: "req-1", CreatedAt: t0,
	}))

	f := newSLAFixture(t, &staleFlags{Tickets: tickets})
	res := f.scanAt(t, 2*time.Hour)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, f.recorder.snapshot())
}

type brokenPolicies struct{}

func (brokenPolicies) ListAll(ctx context.Context) ([]domain.SLAPolicy, error) {
	return nil, errors.New("relation sla_policies does not exist")
}

func TestRunSlaScanFailsWhenPoliciesUnavailable(t *testing.T) {
	svc := NewSLAService(SLADependencies{
		TicketRepo: memory.NewTickets(),
		PolicyRepo: brokenPolicies{},
		Logger:     zaptest.NewLogger(t),
	})
	_, err := svc.RunSlaScan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence failure")
}

func TestStatusReportsDeadline(t *testing.T) {
	f := newSLAFixture(t, nil)
	ticket := &domain.Ticket{
		Title: "Status", Status: domain.TicketStatusNew, Urgency: urgency(domain.UrgencyLow),
		RequesterID: "req-1", CreatorID: "req-1", CreatedAt: t0,
	}
	require.NoError(t, f.tickets.Create(context.Background(), ticket))
	f.clock.Set(t0.Add(7 * time.Hour))

	status, err := f.svc.Status(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.True(t, status.Applicable)
	assert.Equal(t, domain.SLAPhaseAssignment, status.Phase)
	require.NotNil(t, status.Deadline)
	assert.Equal(t, t0.Add(8*time.Hour), *status.Deadline)
	assert.Equal(t, "1h 0m", status.TimeLeft)
	assert.False(t, status.Overdue)
}
