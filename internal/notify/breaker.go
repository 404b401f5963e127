package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings tunes the relay circuit breaker.
type BreakerSettings struct {
	// MinRequests is how many sends the breaker observes before it may trip.
	MinRequests uint32
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
}

// BreakingTransport stops hammering a dead relay: once most recent sends failed it
// rejects immediately with gobreaker.ErrOpenState until Timeout passes.
type BreakingTransport struct {
	next Transport
	cb   *gobreaker.CircuitBreaker
}

// NewBreakingTransport wraps next.
func NewBreakingTransport(next Transport, st BreakerSettings, logger *zap.Logger) *BreakingTransport {
	minRequests := st.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp-relay",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     st.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &BreakingTransport{next: next, cb: cb}
}

func (t *BreakingTransport) Send(ctx context.Context, msg Message) error {
	_, err := t.cb.Execute(func() (interface{}, error) {
		return nil, t.next.Send(ctx, msg)
	})
	return err
}

// State reports the breaker state, for health output.
func (t *BreakingTransport) State() gobreaker.State {
	return t.cb.State()
}
