package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

func TestSLASubject(t *testing.T) {
	assert.Equal(t,
		"[WARNING] Resolution SLA for ticket #42: Printer down",
		SLASubject(domain.SLAEventWarning, domain.SLAPhaseResolution, "42", "Printer down"))
	assert.Equal(t,
		"[VIOLATION] Assignment SLA for ticket #7: VPN",
		SLASubject(domain.SLAEventViolation, domain.SLAPhaseAssignment, "7", "VPN"))
}

func TestRendererEscapesAndBrands(t *testing.T) {
	r, err := NewRenderer("HelpdeskOI")
	require.NoError(t, err)

	body, err := r.Render(TemplateSLAWarning, TemplateData{
		Brand:         "ignored",
		RecipientName: "ana",
		TicketID:      "42",
		Title:         "<script>x</script>",
		PhaseLabel:    "Resolution",
		TimeInfo:      "15 minutes",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "HelpdeskOI")
	assert.NotContains(t, body, "ignored")
	assert.Contains(t, body, "15 minutes")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "<script>")
}

func TestRendererKnowsEveryTemplate(t *testing.T) {
	r, err := NewRenderer("HelpdeskOI")
	require.NoError(t, err)

	for _, name := range []Template{
		TemplateSLAWarning, TemplateSLAViolation, TemplateTicketCreated, TemplateTicketAssigned, TemplateTicketStatus,
		TemplateTicketComment,
	} {
		body, err := r.Render(name, TemplateData{TicketID: "1", Title: "t"})
		require.NoError(t, err, name)
		assert.Contains(t, body, "#1", name)
	}
}
