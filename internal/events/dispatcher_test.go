package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string

	d.Subscribe(EventSLAWarning, func(ctx context.Context, e Event) error {
		calls = append(calls, "first")
		return errors.New("smtp down")
	})
	d.Subscribe(EventSLAWarning, func(ctx context.Context, e Event) error {
		calls = append(calls, "second")
		panic("boom")
	})
	d.Subscribe(EventSLAWarning, func(ctx context.Context, e Event) error {
		calls = append(calls, "third")
		return nil
	})
	d.Subscribe(EventSLAViolation, func(ctx context.Context, e Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventSLAWarning, TicketID: "t-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
}
