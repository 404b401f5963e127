package domain

// SLAPolicy maps an urgency to its time budgets.
type SLAPolicy struct {
	ID                  string
	Urgency             Urgency
	AssignmentTimeHours int
	ResolutionTimeHours int
}

// SLAPhase names which clock a deadline belongs to.
type SLAPhase string

const (
	SLAPhaseAssignment SLAPhase = "assignment"
	SLAPhaseResolution SLAPhase = "resolution"
)

// SLAEventKind separates approaching deadlines from missed ones.
type SLAEventKind string

const (
	SLAEventWarning   SLAEventKind = "WARNING"
	SLAEventViolation SLAEventKind = "VIOLATION"
)
