package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names an embedded e-mail body.
type Template string

const (
	TemplateSLAWarning     Template = "sla_warning.html"
	TemplateSLAViolation   Template = "sla_violation.html"
	TemplateTicketCreated  Template = "ticket_created.html"
	TemplateTicketAssigned Template = "ticket_assigned.html"
	TemplateTicketStatus   Template = "ticket_status.html"
	TemplateTicketComment  Template = "ticket_comment.html"
)

// TemplateData is the union of fields the bodies use.
type TemplateData struct {
	Brand          string
	RecipientName  string
	TicketID       string
	Title          string
	Urgency        string
	PhaseLabel     string
	Deadline       string
	TimeInfo       string
	Status         string
	OldStatus      string
	Comment        string
	TechnicianName string
	AuthorName     string
	ForTechnician  bool
}

// Renderer renders HTML bodies from the embedded templates.
type Renderer struct {
	brand string
	tmpl  *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer(brand string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{brand: brand, tmpl: tmpl}, nil
}

// Render executes name with data. The brand is always taken from the renderer.
func (r *Renderer) Render(name Template, data TemplateData) (string, error) {
	data.Brand = r.brand
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, string(name), data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// PhaseLabel is the human name of an SLA clock.
func PhaseLabel(phase domain.SLAPhase) string {
	switch phase {
	case domain.SLAPhaseAssignment:
		return "Assignment"
	case domain.SLAPhaseResolution:
		return "Resolution"
	default:
		return string(phase)
	}
}

// SLASubject builds e.g. "[WARNING] Resolution SLA for ticket #42: Printer down".
func SLASubject(kind domain.SLAEventKind, phase domain.SLAPhase, ticketID, title string) string {
	return fmt.Sprintf("[%s] %s SLA for ticket #%s: %s", kind, PhaseLabel(phase), ticketID, title)
}
