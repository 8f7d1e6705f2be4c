package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEngineTimeouts(t *testing.T) {
	t.Setenv("EXTRACTION_TIMEOUT_SECONDS", "12")
	t.Setenv("SUBMIT_POLL_INTERVAL_MS", "75")
	t.Setenv("GRADING_TIMEOUT_SECONDS", "20")

	cfg := Load()
	require.Equal(t, 12*time.Second, cfg.ExtractionTimeout)
	require.Equal(t, 75*time.Millisecond, cfg.SubmitPollInterval)
	require.Equal(t, 20*time.Second, cfg.GradingTimeout)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EXTRACTION_TIMEOUT_SECONDS", "")
	t.Setenv("SUBMIT_POLL_INTERVAL_MS", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	require.Equal(t, 60*time.Second, cfg.ExtractionTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.SubmitPollInterval)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
