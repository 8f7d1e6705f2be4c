package model

import (
	"time"

	"github.com/google/uuid"
)

// InitialTrustScore is the trust score every session starts with.
const InitialTrustScore = 100

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusFlagged    SessionStatus = "FLAGGED"
	SessionStatusTerminated SessionStatus = "TERMINATED"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusFlagged, SessionStatusTerminated, SessionStatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusTerminated || s == SessionStatusCompleted
}

// CanTransitionTo reports whether s -> next is a legal lifecycle edge.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusActive:
		return next == SessionStatusFlagged || next == SessionStatusTerminated || next == SessionStatusCompleted
	case SessionStatusFlagged:
		return next == SessionStatusTerminated || next == SessionStatusCompleted
	}
	return false
}

// Session represents one exam attempt by one student, from assignment to a terminal state.
type Session struct {
	ID                uuid.UUID                   `json:"id"`
	StudentID         string                      `json:"student_id"`
	StudentName       string                      `json:"student_name"`
	ExamType          string                      `json:"exam_type"`
	QuestionSetID     uuid.UUID                   `json:"question_set_id"`
	Status            SessionStatus               `json:"status"`
	TrustScore        int                         `json:"trust_score"`
	TerminationReason *string                     `json:"termination_reason,omitempty"`
	Answers           map[string]string           `json:"answers,omitempty"`
	Score             *float64                    `json:"score,omitempty"`
	Percentage        *float64                    `json:"percentage,omitempty"`
	TotalQuestions    int                         `json:"total_questions"`
	TotalMarks        float64                     `json:"total_marks"`
	Feedback          map[string]QuestionFeedback `json:"feedback,omitempty"`
	Report            *IntegrityReport            `json:"report,omitempty"`
	GradingClaimedAt  *time.Time                  `json:"grading_claimed_at,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
	FinishedAt        *time.Time                  `json:"finished_at,omitempty"`
}

// NewSession returns an Active session with a full trust score.
func NewSession(studentID, studentName, examType string, questionSetID uuid.UUID, now time.Time) *Session {
	return &Session{
		ID:            uuid.New(),
		StudentID:     studentID,
		StudentName:   studentName,
		ExamType:      examType,
		QuestionSetID: questionSetID,
		Status:        SessionStatusActive,
		TrustScore:    InitialTrustScore,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// QuestionFeedback is the graded outcome of one question.
type QuestionFeedback struct {
	QuestionID string       `json:"question_id"`
	Type       QuestionType `json:"type"`
	Answer     string       `json:"answer"`
	Score      float64      `json:"score"`
	MaxMarks   float64      `json:"max_marks"`
	Correct    bool         `json:"correct"`
	Remarks    string       `json:"remarks,omitempty"`
}

// ViolationLogEntry is one append-only entry of a session's violation log.
type ViolationLogEntry struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLogEntry builds a log entry for the given session.
func NewLogEntry(sessionID uuid.UUID, message string, at time.Time) ViolationLogEntry {
	return ViolationLogEntry{
		ID:        uuid.New(),
		SessionID: sessionID,
		Message:   message,
		Timestamp: at,
	}
}

// SessionFilter narrows session listings. Zero values match everything.
type SessionFilter struct {
	StudentID     string
	QuestionSetID *uuid.UUID
	Status        SessionStatus
}

// Matches reports whether s satisfies the filter.
func (f SessionFilter) Matches(s *Session) bool {
	if f.StudentID != "" && s.StudentID != f.StudentID {
		return false
	}
	if f.QuestionSetID != nil && s.QuestionSetID != *f.QuestionSetID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// AssignSessionRequest is the payload for assigning a question set to a student.
type AssignSessionRequest struct {
	StudentID     string `json:"student_id" binding:"required,min=1,max=128"`
	StudentName   string `json:"student_name" binding:"required,min=1,max=200"`
	ExamType      string `json:"exam_type" binding:"omitempty,max=100"`
	QuestionSetID string `json:"question_set_id" binding:"required,uuid"`
}

// ListSessionsQuery is the query string accepted by session listings.
type ListSessionsQuery struct {
	StudentID     string `form:"student_id" binding:"omitempty,max=128"`
	QuestionSetID string `form:"question_set_id" binding:"omitempty,uuid"`
	Status        string `form:"status" binding:"omitempty,oneof=ACTIVE FLAGGED TERMINATED COMPLETED"`
	Page          int    `form:"page" binding:"omitempty,min=1"`
	PerPage       int    `form:"per_page" binding:"omitempty,min=1,max=200"`
}

// AppendLogRequest is the payload for writing a free-form audit entry.
type AppendLogRequest struct {
	Message   string     `json:"message" binding:"required,min=1,max=1000"`
	Timestamp *time.Time `json:"timestamp"`
}

// TerminateRequest is the payload for an administrative termination.
type TerminateRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// SubmitRequest carries the raw answer map keyed by question id.
type SubmitRequest struct {
	Answers map[string]any `json:"answers" binding:"required"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	c := *s
	if s.TerminationReason != nil {
		r := *s.TerminationReason
		c.TerminationReason = &r
	}
	if s.Answers != nil {
		c.Answers = make(map[string]string, len(s.Answers))
		for k, v := range s.Answers {
			c.Answers[k] = v
		}
	}
	if s.Score != nil {
		v := *s.Score
		c.Score = &v
	}
	if s.Percentage != nil {
		v := *s.Percentage
		c.Percentage = &v
	}
	if s.Feedback != nil {
		c.Feedback = make(map[string]QuestionFeedback, len(s.Feedback))
		for k, v := range s.Feedback {
			c.Feedback[k] = v
		}
	}
	if s.Report != nil {
		r := *s.Report
		if s.Report.TrustScoreEstimate != nil {
			v := *s.Report.TrustScoreEstimate
			r.TrustScoreEstimate = &v
		}
		r.SuspiciousMoments = append([]SuspiciousMoment(nil), s.Report.SuspiciousMoments...)
		c.Report = &r
	}
	if s.GradingClaimedAt != nil {
		t := *s.GradingClaimedAt
		c.GradingClaimedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
