package model

import (
	"time"

	"github.com/google/uuid"
)

// SignalOutcome is the session state after a signal was considered.
type SignalOutcome struct {
	SessionID             uuid.UUID     `json:"session_id"`
	Status                SessionStatus `json:"status"`
	TrustScore            int           `json:"trust_score"`
	TerminationReason     *string       `json:"termination_reason,omitempty"`
	Signal                Signal        `json:"signal"`
	Applied               bool          `json:"applied"`
	NoOp                  bool          `json:"no_op"`
	ClassifierUnavailable bool          `json:"classifier_unavailable,omitempty"`
}

// StatusView is the low-latency polling view of a session.
type StatusView struct {
	SessionID         uuid.UUID           `json:"session_id"`
	StudentID         string              `json:"student_id"`
	StudentName       string              `json:"student_name"`
	Status            SessionStatus       `json:"status"`
	TrustScore        int                 `json:"trust_score"`
	TerminationReason *string             `json:"termination_reason,omitempty"`
	Score             *float64            `json:"score,omitempty"`
	Percentage        *float64            `json:"percentage,omitempty"`
	Alerts            []string            `json:"alerts"`
	RecentLogs        []ViolationLogEntry `json:"recent_logs"`
}

// SubmissionResult is the write-once grading outcome returned to every submit caller.
type SubmissionResult struct {
	SessionID         uuid.UUID                   `json:"session_id"`
	Status            SessionStatus               `json:"status"`
	Score             *float64                    `json:"score,omitempty"`
	TotalQuestions    int                         `json:"total_questions"`
	TotalMarks        float64                     `json:"total_marks"`
	Percentage        *float64                    `json:"percentage,omitempty"`
	Feedback          map[string]QuestionFeedback `json:"feedback,omitempty"`
	TerminationReason *string                     `json:"termination_reason,omitempty"`
	FinishedAt        *time.Time                  `json:"finished_at,omitempty"`
	NoOp              bool                        `json:"no_op"`
}

// ResultFromSession projects the stored result of s.
func ResultFromSession(s *Session, noOp bool) *SubmissionResult {
	return &SubmissionResult{
		SessionID:         s.ID,
		Status:            s.Status,
		Score:             s.Score,
		TotalQuestions:    s.TotalQuestions,
		TotalMarks:        s.TotalMarks,
		Percentage:        s.Percentage,
		Feedback:          s.Feedback,
		TerminationReason: s.TerminationReason,
		FinishedAt:        s.FinishedAt,
		NoOp:              noOp,
	}
}

// ExamPaper is the "current question" payload. Terminal sessions get only the
// status fields; Questions stays empty and Locked is true.
type ExamPaper struct {
	SessionID         uuid.UUID        `json:"session_id"`
	Status            SessionStatus    `json:"status"`
	TrustScore        int              `json:"trust_score"`
	TerminationReason *string          `json:"termination_reason,omitempty"`
	Score             *float64         `json:"score,omitempty"`
	Percentage        *float64         `json:"percentage,omitempty"`
	Locked            bool             `json:"locked"`
	Title             string           `json:"title,omitempty"`
	Subject           string           `json:"subject,omitempty"`
	ExamType          string           `json:"exam_type,omitempty"`
	Questions         []PublicQuestion `json:"questions,omitempty"`
}

// DashboardStats aggregates sessions for the admin dashboard.
type DashboardStats struct {
	TotalSessions      int     `json:"total_sessions"`
	ActiveSessions     int     `json:"active_sessions"`
	FlaggedSessions    int     `json:"flagged_sessions"`
	TerminatedSessions int     `json:"terminated_sessions"`
	CompletedSessions  int     `json:"completed_sessions"`
	AverageTrustScore  float64 `json:"average_trust_score"`
	TotalQuestionSets  int     `json:"total_question_sets"`
}

// TerminationOutcome is the session state after an administrative termination.
type TerminationOutcome struct {
	SessionID         uuid.UUID     `json:"session_id"`
	Status            SessionStatus `json:"status"`
	TrustScore        int           `json:"trust_score"`
	TerminationReason *string       `json:"termination_reason,omitempty"`
	NoOp              bool          `json:"no_op"`
}
