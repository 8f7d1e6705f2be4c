package model

import (
	"time"

	"github.com/google/uuid"
)

// DegradedReportSummary is the summary stored when no report could be generated.
const DegradedReportSummary = "Integrity report could not be generated."

// Assessment is the coarse verdict of an integrity report.
type Assessment string

const (
	AssessmentSafe       Assessment = "SAFE"
	AssessmentSuspicious Assessment = "SUSPICIOUS"
	AssessmentHighRisk   Assessment = "HIGH_RISK"
	AssessmentUnknown    Assessment = "UNKNOWN"
)

// SuspiciousMoment points at a part of the violation log worth reviewing.
type SuspiciousMoment struct {
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
}

// IntegrityReport is advisory. It never feeds back into status or score.
type IntegrityReport struct {
	TrustScoreEstimate *int               `json:"trust_score_estimate"`
	Assessment         Assessment         `json:"assessment"`
	SummaryText        string             `json:"summary_text"`
	SuspiciousMoments  []SuspiciousMoment `json:"suspicious_moments"`
	Degraded           bool               `json:"degraded"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

// DegradedReport is returned whenever the summarizer is unavailable.
func DegradedReport(at time.Time) *IntegrityReport {
	return &IntegrityReport{
		Assessment:        AssessmentUnknown,
		SummaryText:       DegradedReportSummary,
		SuspiciousMoments: []SuspiciousMoment{},
		Degraded:          true,
		GeneratedAt:       at,
	}
}

// SessionEventType names a lifecycle event broadcast to monitors.
type SessionEventType string

const (
	EventSessionAssigned   SessionEventType = "session.assigned"
	EventSessionSignal     SessionEventType = "session.signal"
	EventSessionTerminated SessionEventType = "session.terminated"
	EventSessionSubmitted  SessionEventType = "session.submitted"
	EventSessionReport     SessionEventType = "session.report"
	EventSessionLog        SessionEventType = "session.log"
)

// SessionEvent is the payload published on the monitor channels.
type SessionEvent struct {
	Type              SessionEventType `json:"type"`
	SessionID         uuid.UUID        `json:"session_id"`
	QuestionSetID     uuid.UUID        `json:"question_set_id"`
	StudentID         string           `json:"student_id"`
	StudentName       string           `json:"student_name"`
	Status            SessionStatus    `json:"status"`
	TrustScore        int              `json:"trust_score"`
	TerminationReason *string          `json:"termination_reason,omitempty"`
	Message           string           `json:"message,omitempty"`
	Score             *float64         `json:"score,omitempty"`
	At                time.Time        `json:"at"`
}

// EventFromSession builds an event snapshot of s.
func EventFromSession(t SessionEventType, s *Session, message string, at time.Time) SessionEvent {
	return SessionEvent{
		Type:              t,
		SessionID:         s.ID,
		QuestionSetID:     s.QuestionSetID,
		StudentID:         s.StudentID,
		StudentName:       s.StudentName,
		Status:            s.Status,
		TrustScore:        s.TrustScore,
		TerminationReason: s.TerminationReason,
		Message:           message,
		Score:             s.Score,
		At:                at,
	}
}
