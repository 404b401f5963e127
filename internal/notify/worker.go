package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/sla-monitor/internal/observability"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util/errorutil"
)

// Worker drains the queue into the transport. Each message gets exactly one delivery
// attempt; failures are logged and counted, never retried.
type Worker struct {
	queue     Queue
	transport Transport
	limiter   *rate.Limiter
	logger    *zap.Logger
	metrics   *observability.Metrics
	backoff   time.Duration
}

// NewWorker builds a worker sending at most perSecond messages per second with the
// given burst.
func NewWorker(queue Queue, transport Transport, perSecond float64, burst int, logger *zap.Logger, metrics *observability.Metrics) *Worker {
	if burst <= 0 {
		burst = 1
	}
	return &Worker{
		queue:     queue,
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:    logger,
		metrics:   metrics,
		backoff:   time.Second,
	}
}

// Run consumes until ctx is cancelled or the queue is closed.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("notification worker started")
	defer w.logger.Info("notification worker stopped")

	for {
		msg, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return nil
			}
			w.logger.Error("dequeue notification", zap.Error(err))
			if !sleepCtx(ctx, w.backoff) {
				return nil
			}
			continue
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return nil
		}
		w.deliver(ctx, msg)
	}
}

// Flush delivers queued messages until none arrives within idle or ctx ends. One-shot
// commands call it before exiting. It returns the number of messages handed to the
// transport.
func (w *Worker) Flush(ctx context.Context, idle time.Duration) int {
	delivered := 0
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, idle)
		msg, err := w.queue.Dequeue(waitCtx)
		cancel()
		if err != nil {
			return delivered
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return delivered
		}
		w.deliver(ctx, msg)
		delivered++
	}
	return delivered
}

func (w *Worker) deliver(ctx context.Context, msg Message) {
	err := w.transport.Send(ctx, msg)
	if err == nil {
		w.metrics.RecordSent()
		w.logger.Debug("notification sent",
			zap.String("notification_id", msg.ID),
			zap.String("ticket_id", msg.TicketID),
			zap.String("kind", msg.Kind))
		return
	}

	reason := "send"
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		reason = "breaker_open"
	}
	w.metrics.RecordSendFailure(reason)
	w.logger.Error("notification delivery failed",
		zap.String("notification_id", msg.ID),
		zap.String("ticket_id", msg.TicketID),
		zap.String("kind", msg.Kind),
		zap.String("recipient", msg.To),
		zap.Error(apperrors.Classify(apperrors.ErrNotificationDelivery, "send", err)))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
