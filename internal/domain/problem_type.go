package domain

import "time"

// ProblemType is a triage category assigned together with the urgency.
type ProblemType struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
}
