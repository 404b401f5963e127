package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/sla-monitor/internal/domain"
	"github.com/spec-kit/sla-monitor/internal/events"
	"github.com/spec-kit/sla-monitor/internal/notify"
	"github.com/spec-kit/sla-monitor/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

func urgency(u domain.Urgency) *domain.Urgency { return &u }

func staff() []domain.User {
	return []domain.User{
		{ID: "sup-1", Username: "sofia", FullName: "Sofia Supervisor", Email: "sofia@example.com", Role: domain.RoleSupervisor, Active: true},
		{ID: "mon-1", Username: "mateo", FullName: "Mateo Monitor", Email: "mateo@example.com", Role: domain.RoleMonitor, Active: true},
		{ID: "mon-2", Username: "old-monitor", Email: "old@example.com", Role: domain.RoleMonitor, Active: false},
		{ID: "tech-1", Username: "tomas", FullName: "Tomas Tech", Email: "tomas@example.com", Role: domain.RoleTechnician, Active: true},
		{ID: "tech-2", Username: "tina", FullName: "Tina Tech", Email: "tina@example.com", Role: domain.RoleTechnician, Active: true},
		{ID: "req-1", Username: "rita", FullName: "Rita Requester", Email: "rita@example.com", Role: domain.RoleSelfService, Active: true},
	}
}

// recorder captures published events by type.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func subscribeAll(d events.Dispatcher, r *recorder) {
	for _, et := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketAssigned,
		events.EventTicketStatusChanged,
		events.EventTicketClassified,
		events.EventTicketCommented,
		events.EventSLAWarning,
		events.EventSLAViolation,
	} {
		d.Subscribe(et, r.handle)
	}
}

func drain(q *notify.MemoryQueue) []notify.Message {
	var out []notify.Message
	for q.Len() > 0 {
		msg, err := q.Dequeue(context.Background())
		if err != nil {
			break
		}
		out = append(out, msg)
	}
	return out
}

func recipients(msgs []notify.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.To)
	}
	return out
}

func newNotifier(t *testing.T, d events.Dispatcher, users *memory.Users, q notify.Queue) *NotificationService {
	t.Helper()
	renderer, err := notify.NewRenderer("HelpdeskOI")
	require.NoError(t, err)
	n := NewNotificationService(d, users, q, renderer, zaptest.NewLogger(t), nil)
	n.RegisterHandlers()
	return n
}
