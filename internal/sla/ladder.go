package sla

import (
	"time"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// DefaultThresholds is the warning ladder in minutes.
var DefaultThresholds = []int{30, 15, 5}

// DecisionKind says what a single evaluation wants to emit.
type DecisionKind int

const (
	DecisionNone DecisionKind = iota
	DecisionWarning
	DecisionViolation
)

// Decision is the outcome of evaluating one ticket against its deadline.
// Next holds the flags to persist before anything is sent.
type Decision struct {
	Kind     DecisionKind
	Level    int
	TimeLeft time.Duration
	Overdue  time.Duration
	Next     domain.SLAFlags
}

// Fires reports whether the decision produces a notification.
func (d Decision) Fires() bool {
	return d.Kind != DecisionNone
}

// EventKind maps the decision to the notification kind.
func (d Decision) EventKind() domain.SLAEventKind {
	if d.Kind == DecisionViolation {
		return domain.SLAEventViolation
	}
	return domain.SLAEventWarning
}

// Ladder evaluates the warning thresholds and the one-shot violation flag.
type Ladder struct {
	thresholds []int
}

// NewLadder builds a ladder. thresholds must be strictly descending minutes.
func NewLadder(thresholds []int) *Ladder {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	cp := make([]int, len(thresholds))
	copy(cp, thresholds)
	return &Ladder{thresholds: cp}
}

// Thresholds returns a copy of the configured ladder.
func (l *Ladder) Thresholds() []int {
	cp := make([]int, len(l.thresholds))
	copy(cp, l.thresholds)
	return cp
}

// Evaluate decides whether a warning or violation is due at now.
// A passed deadline never yields a warning; a violation is emitted once.
func (l *Ladder) Evaluate(flags domain.SLAFlags, deadline time.Time, now time.Time) Decision {
	timeLeft := deadline.Sub(now)
	decision := Decision{Kind: DecisionNone, TimeLeft: timeLeft, Next: flags}

	if timeLeft <= 0 {
		if flags.ViolationSent {
			return decision
		}
		decision.Kind = DecisionViolation
		decision.Overdue = -timeLeft
		decision.Next.ViolationSent = true
		return decision
	}

	// Tightest threshold already crossed; the ladder is descending so keep the last hit.
	matched := 0
	for _, threshold := range l.thresholds {
		if timeLeft > time.Duration(threshold)*time.Minute {
			break
		}
		matched = threshold
	}
	if matched == 0 {
		return decision
	}
	if flags.WarningLevel != nil && matched >= *flags.WarningLevel {
		return decision
	}

	level := matched
	decision.Kind = DecisionWarning
	decision.Level = level
	decision.Next.WarningLevel = &level
	return decision
}
