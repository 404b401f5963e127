package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThresholds(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []int
		wantErr bool
	}{
		{name: "default ladder", raw: "30,15,5", want: []int{30, 15, 5}},
		{name: "unordered with spaces", raw: " 5, 30 ,15", want: []int{30, 15, 5}},
		{name: "duplicates collapse", raw: "15,15,5", want: []int{15, 5}},
		{name: "non numeric", raw: "30,abc", wantErr: true},
		{name: "zero rejected", raw: "30,0", wantErr: true},
		{name: "empty", raw: " , ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseThresholds(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLA_WARNING_THRESHOLDS", "")
	t.Setenv("SLA_SCAN_INTERVAL_MINUTES", "")
	t.Setenv("MAIL_POLL_INTERVAL_MINUTES", "")
	t.Setenv("MAIL_SUBJECT_KEYWORDS", "")
	t.Setenv("NOTIFY_QUEUE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int{30, 15, 5}, cfg.SLA.WarningThresholds)
	assert.Equal(t, 10*time.Minute, cfg.SLA.ScanInterval())
	assert.Equal(t, 5*time.Minute, cfg.Mail.PollInterval())
	assert.Equal(t, 3, cfg.Mail.ConnectRetries)
	assert.Equal(t, 30*time.Second, cfg.Mail.RetryDelay())
	assert.Equal(t, []string{"reporte", "report"}, cfg.Mail.SubjectKeywords)
	assert.Equal(t, "memory", cfg.Notification.Queue)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_WARNING_THRESHOLDS", "60,10")
	t.Setenv("MAIL_POLL_INTERVAL_MINUTES", "2")
	t.Setenv("MAIL_SUBJECT_KEYWORDS", "Incident, Falla")
	t.Setenv("NOTIFY_QUEUE", "REDIS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int{60, 10}, cfg.SLA.WarningThresholds)
	assert.Equal(t, 2*time.Minute, cfg.Mail.PollInterval())
	assert.Equal(t, []string{"Incident", "Falla"}, cfg.Mail.SubjectKeywords)
	assert.Equal(t, "redis", cfg.Notification.Queue)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "thresholds", key: "SLA_WARNING_THRESHOLDS", value: "-5"},
		{name: "queue backend", key: "NOTIFY_QUEUE", value: "kafka"},
		{name: "send rate", key: "NOTIFY_SEND_RATE_PER_SECOND", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
