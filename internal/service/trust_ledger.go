package service

import (
	"fmt"
	"time"

	"github.com/stemsi/secureeval-backend/internal/model"
)

// TrustLedger converts violation signals into trust decay and status changes.
// It holds no state of its own and never touches storage.
type TrustLedger struct {
	penalty   int
	threshold int
	mode      TerminationMode
}

// NewTrustLedger creates a ledger for the given policy.
func NewTrustLedger(cfg EngineConfig) *TrustLedger {
	cfg = cfg.withDefaults()
	return &TrustLedger{
		penalty:   cfg.Penalty,
		threshold: cfg.Threshold,
		mode:      cfg.Mode,
	}
}

// Apply applies sig to s in place. It returns the single log entry recording the
// violation and true when s changed; nominal signals and terminal sessions
// yield (nil, false).
func (l *TrustLedger) Apply(s *model.Session, sig model.Signal, now time.Time) (*model.ViolationLogEntry, bool) {
	if !sig.IsViolation() || s.Status.IsTerminal() {
		return nil, false
	}

	reason := sig.Description()
	s.TrustScore -= l.penalty
	if s.TrustScore < 0 {
		s.TrustScore = 0
	}
	s.UpdatedAt = now

	var message string
	if l.shouldTerminate(s.TrustScore) {
		s.Status = model.SessionStatusTerminated
		s.TerminationReason = &reason
		finished := now
		s.FinishedAt = &finished
		message = fmt.Sprintf("Terminated: %s (trust score %d)", reason, s.TrustScore)
	} else {
		s.Status = model.SessionStatusFlagged
		message = fmt.Sprintf("Suspicion: %s (trust score %d)", reason, s.TrustScore)
	}

	entry := model.NewLogEntry(s.ID, message, now)
	return &entry, true
}

// Terminate force-terminates s with reason. Terminal sessions are left untouched.
func (l *TrustLedger) Terminate(s *model.Session, reason string, now time.Time) (*model.ViolationLogEntry, bool) {
	if s.Status.IsTerminal() {
		return nil, false
	}
	s.Status = model.SessionStatusTerminated
	s.TerminationReason = &reason
	finished := now
	s.FinishedAt = &finished
	s.UpdatedAt = now

	entry := model.NewLogEntry(s.ID, fmt.Sprintf("Terminated: %s", reason), now)
	return &entry, true
}

func (l *TrustLedger) shouldTerminate(score int) bool {
	if l.mode == TerminationModeZeroTolerance {
		return true
	}
	return score < l.threshold || score == 0
}
