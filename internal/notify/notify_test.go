package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeTransport struct {
	mu    sync.Mutex
	sent  []Message
	fail  error
	calls int
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) snapshot() (int, []Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]Message(nil), f.sent...)
}

func TestMemoryQueueDropsWhenFull(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Message{ID: "1"}))
	require.NoError(t, q.Enqueue(ctx, Message{ID: "2"}))
	assert.ErrorIs(t, q.Enqueue(ctx, Message{ID: "3"}), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	msg, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", msg.ID)
}

func TestMemoryQueueDequeueHonoursContextAndClose(t *testing.T) {
	q := NewMemoryQueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Close())
	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Enqueue(context.Background(), Message{}), ErrQueueClosed)
}

func TestWorkerDeliversOnceAndKeepsGoingAfterFailure(t *testing.T) {
	q := NewMemoryQueue(10)
	transport := &fakeTransport{fail: errors.New("relay refused")}
	w := NewWorker(q, transport, 1000, 10, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, q.Enqueue(ctx, Message{ID: "a"}))
	require.NoError(t, q.Enqueue(ctx, Message{ID: "b"}))

	require.Eventually(t, func() bool {
		calls, _ := transport.snapshot()
		return calls == 2
	}, time.Second, 5*time.Millisecond)

	// No retries: the two failed messages are gone.
	time.Sleep(20 * time.Millisecond)
	calls, _ := transport.snapshot()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, q.Len())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	q := NewMemoryQueue(1)
	transport := &fakeTransport{}
	w := NewWorker(q, transport, 1000, 1, zap.NewNop(), nil)

	require.NoError(t, q.Enqueue(context.Background(), Message{ID: "x"}))
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_, sent := transport.snapshot()
		return len(sent) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerFlushDeliversPendingMessages(t *testing.T) {
	q := NewMemoryQueue(4)
	transport := &fakeTransport{}
	w := NewWorker(q, transport, 1000, 4, zap.NewNop(), nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), Message{ID: id}))
	}
	assert.Equal(t, 3, w.Flush(context.Background(), 20*time.Millisecond))
	_, sent := transport.snapshot()
	assert.Len(t, sent, 3)
	assert.Zero(t, q.Len())
}

func TestBreakingTransportOpensAfterFailures(t *testing.T) {
	inner := &fakeTransport{fail: errors.New("dial tcp: refused")}
	bt := NewBreakingTransport(inner, BreakerSettings{MinRequests: 3, Timeout: time.Minute}, zap.NewNop())

	for i := 0; i < 3; i++ {
		assert.Error(t, bt.Send(context.Background(), Message{}))
	}
	assert.Equal(t, gobreaker.StateOpen, bt.State())

	err := bt.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	calls, _ := inner.snapshot()
	assert.Equal(t, 3, calls)
}

func TestComposeProducesParseableMail(t *testing.T) {
	raw, err := Compose(
		&mail.Address{Name: "HelpdeskOI", Address: "helpdesk@example.com"},
		Message{To: "ana@example.com", ToName: "Ana", Subject: "[WARNING] Resolution SLA for ticket #1: Ñandú", HTMLBody: "<p>hola</p>"},
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	)
	require.NoError(t, err)

	r, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "[WARNING] Resolution SLA for ticket #1: Ñandú", subject)

	to, err := r.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "ana@example.com", to[0].Address)

	part, err := r.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<p>hola</p>")
}
