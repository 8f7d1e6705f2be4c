package service

import (
	"strings"
	"time"

	"github.com/stemsi/secureeval-backend/internal/config"
)

// TerminationMode selects how violations lead to termination.
type TerminationMode string

const (
	// TerminationModeDecay terminates once the trust score falls below the threshold.
	TerminationModeDecay TerminationMode = "decay"
	// TerminationModeZeroTolerance terminates on the first violation.
	TerminationModeZeroTolerance TerminationMode = "zero_tolerance"
)

// EngineConfig is the explicit configuration of the integrity engine.
type EngineConfig struct {
	Penalty            int
	Threshold          int
	Mode               TerminationMode
	StatusLogLimit     int
	GradingTimeout     time.Duration
	ReportTimeout      time.Duration
	ClassifierTimeout  time.Duration
	ExtractionTimeout  time.Duration
	ClaimTTL           time.Duration
	SubmitPollInterval time.Duration
	AutoReport         bool
	MaxUploadBytes     int64
}

// DefaultEngineConfig returns the stock policy: penalty 10, threshold 50, decay.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Penalty:            10,
		Threshold:          50,
		Mode:               TerminationModeDecay,
		StatusLogLimit:     5,
		GradingTimeout:     30 * time.Second,
		ReportTimeout:      30 * time.Second,
		ClassifierTimeout:  10 * time.Second,
		ExtractionTimeout:  60 * time.Second,
		ClaimTTL:           90 * time.Second,
		SubmitPollInterval: 250 * time.Millisecond,
		AutoReport:         true,
		MaxUploadBytes:     10 << 20,
	}
}

// EngineConfigFromConfig builds the engine configuration from the environment config.
func EngineConfigFromConfig(cfg *config.Config) EngineConfig {
	ec := DefaultEngineConfig()
	ec.Penalty = cfg.TrustPenalty
	ec.Threshold = cfg.TerminationThreshold
	ec.Mode = TerminationMode(strings.ToLower(cfg.TerminationMode))
	ec.StatusLogLimit = cfg.StatusLogLimit
	ec.GradingTimeout = cfg.GradingTimeout
	ec.ReportTimeout = cfg.ReportTimeout
	ec.ClassifierTimeout = cfg.ClassifierTimeout
	ec.ExtractionTimeout = cfg.ExtractionTimeout
	ec.ClaimTTL = cfg.SubmissionClaimTTL
	ec.SubmitPollInterval = cfg.SubmitPollInterval
	ec.AutoReport = cfg.AutoReport
	ec.MaxUploadBytes = cfg.MaxUploadBytes
	return ec.withDefaults()
}

// withDefaults replaces unusable values with the defaults.
func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.Penalty <= 0 {
		c.Penalty = d.Penalty
	}
	if c.Threshold < 0 {
		c.Threshold = d.Threshold
	}
	if c.Mode != TerminationModeDecay && c.Mode != TerminationModeZeroTolerance {
		c.Mode = d.Mode
	}
	if c.StatusLogLimit <= 0 {
		c.StatusLogLimit = d.StatusLogLimit
	}
	if c.GradingTimeout <= 0 {
		c.GradingTimeout = d.GradingTimeout
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = d.ReportTimeout
	}
	if c.ClassifierTimeout <= 0 {
		c.ClassifierTimeout = d.ClassifierTimeout
	}
	if c.ExtractionTimeout <= 0 {
		c.ExtractionTimeout = d.ExtractionTimeout
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = d.ClaimTTL
	}
	if c.SubmitPollInterval <= 0 {
		c.SubmitPollInterval = d.SubmitPollInterval
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	return c
}
