package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/secureeval-backend/internal/config"
)

func TestEngineConfigFromConfig(t *testing.T) {
	ec := EngineConfigFromConfig(&config.Config{
		TrustPenalty:         15,
		TerminationThreshold: 40,
		TerminationMode:      "ZERO_TOLERANCE",
		StatusLogLimit:       3,
		GradingTimeout:       5 * time.Second,
		ReportTimeout:        6 * time.Second,
		ClassifierTimeout:    7 * time.Second,
		ExtractionTimeout:    8 * time.Second,
		SubmissionClaimTTL:   9 * time.Second,
		SubmitPollInterval:   40 * time.Millisecond,
		AutoReport:           false,
		MaxUploadBytes:       2048,
	})

	require.Equal(t, 15, ec.Penalty)
	require.Equal(t, 40, ec.Threshold)
	require.Equal(t, TerminationModeZeroTolerance, ec.Mode)
	require.Equal(t, 3, ec.StatusLogLimit)
	require.Equal(t, 5*time.Second, ec.GradingTimeout)
	require.Equal(t, 6*time.Second, ec.ReportTimeout)
	require.Equal(t, 7*time.Second, ec.ClassifierTimeout)
	require.Equal(t, 8*time.Second, ec.ExtractionTimeout)
	require.Equal(t, 9*time.Second, ec.ClaimTTL)
	require.Equal(t, 40*time.Millisecond, ec.SubmitPollInterval)
	require.False(t, ec.AutoReport)
	require.Equal(t, int64(2048), ec.MaxUploadBytes)
}

func TestEngineConfigFromConfigFallsBackToDefaults(t *testing.T) {
	ec := EngineConfigFromConfig(&config.Config{TerminationMode: "lenient"})
	d := DefaultEngineConfig()

	require.Equal(t, d.Penalty, ec.Penalty)
	require.Equal(t, d.Mode, ec.Mode)
	require.Equal(t, d.ExtractionTimeout, ec.ExtractionTimeout)
	require.Equal(t, d.SubmitPollInterval, ec.SubmitPollInterval)
	require.Equal(t, d.ClaimTTL, ec.ClaimTTL)
}
