package sla

import (
	"fmt"
	"time"
)

// FormatWarning renders the remaining time carried by a warning, e.g. "15 minutes".
func FormatWarning(level int) string {
	if level == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", level)
}

// FormatOverdue renders how far past the deadline a ticket is, e.g. "1h 5m".
func FormatOverdue(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int(d / time.Minute)
	return fmt.Sprintf("%dh %dm", total/60, total%60)
}

// TimeInfo picks the human readable delta for a decision.
func (d Decision) TimeInfo() string {
	switch d.Kind {
	case DecisionViolation:
		return FormatOverdue(d.Overdue)
	case DecisionWarning:
		return FormatWarning(d.Level)
	default:
		return ""
	}
}
