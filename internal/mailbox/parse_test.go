package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParsePlainMessage(t *testing.T) {
	raw := crlf(`From: Ana Perez <ana@example.com>
To: soporte@example.com
Subject: Reporte de falla en impresora
Content-Type: text/plain; charset=utf-8

La impresora del piso 3 no imprime.
`)
	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Reporte de falla en impresora", p.Subject)
	assert.Equal(t, "ana@example.com", p.FromAddress)
	assert.Equal(t, "Ana Perez", p.FromName)
	assert.Contains(t, p.PlainBody, "La impresora del piso 3 no imprime.")
}

func TestParseEncodedSubjectAndMultipart(t *testing.T) {
	raw := crlf(`From: bob@example.com
Subject: =?UTF-8?B?UmVwb3J0OiDDsWFuZMO6?=
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="XX"

--XX
Content-Type: text/html; charset=utf-8

<p>html first</p>
--XX
Content-Type: text/plain; charset=iso-8859-1
Content-Transfer-Encoding: quoted-printable

Caf=E9 sin conexi=F3n
--XX
Content-Type: application/pdf
Content-Disposition: attachment; filename="a.pdf"

%PDF
--XX--
`)
	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Report: ñandú", p.Subject)
	assert.Equal(t, "Café sin conexión", strings.TrimSpace(p.PlainBody))
}

func TestParseWithoutPlainBody(t *testing.T) {
	raw := crlf(`From: bob@example.com
Subject: Report
Content-Type: text/html

<p>only html</p>
`)
	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Empty(t, p.PlainBody)
}

func TestParseRejectsMissingSender(t *testing.T) {
	raw := crlf(`Subject: Report
Content-Type: text/plain

body
`)
	_, err := Parse(raw)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMatchesKeyword(t *testing.T) {
	keywords := []string{"reporte", "report"}
	tests := []struct {
		subject string
		want    bool
	}{
		{"Reporte de falla en impresora", true},
		{"  REPORT: vpn down", true},
		{"reportes mensuales", true},
		{"Factura mensual", false},
		{"Re: Reporte", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesKeyword(tt.subject, keywords), tt.subject)
	}
}
