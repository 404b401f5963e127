package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrTaskRunning is returned when a task name is already registered.
var ErrTaskRunning = errors.New("task already running")

// TaskHandle controls one supervised task.
type TaskHandle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Name returns the task name.
func (h *TaskHandle) Name() string { return h.name }

// Cancel asks the task to stop. It does not wait.
func (h *TaskHandle) Cancel() { h.cancel() }

// Done is closed once the task returned.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Err is the task's return value; valid after Done is closed.
func (h *TaskHandle) Err() error {
	<-h.done
	return h.err
}

// Supervisor owns the background tasks of the process.
type Supervisor struct {
	parent context.Context
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*TaskHandle
}

// NewSupervisor derives every task context from parent.
func NewSupervisor(parent context.Context, logger *zap.Logger) *Supervisor {
	return &Supervisor{parent: parent, logger: logger, tasks: map[string]*TaskHandle{}}
}

// Start launches run under name. A panic inside run is recovered and reported as the
// task's error.
func (s *Supervisor) Start(name string, run func(ctx context.Context) error) (*TaskHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tasks[name]; ok {
		select {
		case <-existing.done:
		default:
			return nil, fmt.Errorf("%s: %w", name, ErrTaskRunning)
		}
	}

	ctx, cancel := context.WithCancel(s.parent)
	h := &TaskHandle{name: name, cancel: cancel, done: make(chan struct{})}
	s.tasks[name] = h

	go func() {
		defer close(h.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("task %s panicked: %v", name, r)
				s.logger.Error("supervised task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		h.err = run(ctx)
		if h.err != nil {
			s.logger.Error("supervised task exited", zap.String("task", name), zap.Error(h.err))
		}
	}()

	s.logger.Info("supervised task started", zap.String("task", name))
	return h, nil
}

// Running lists tasks that have not returned yet.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name, h := range s.tasks {
		select {
		case <-h.done:
		default:
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Shutdown cancels every task and waits for them or for ctx, whichever comes first.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	handles := make([]*TaskHandle, 0, len(s.tasks))
	for _, h := range s.tasks {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown: task %s still running: %w", h.name, ctx.Err())
		}
	}
	s.logger.Info("all supervised tasks stopped", zap.Int("count", len(handles)))
	return nil
}
