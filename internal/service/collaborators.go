package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/secureeval-backend/internal/model"
)

// GradeItem is one free-text answer sent for AI grading.
type GradeItem struct {
	ID       string
	Question string
	Answer   string
	MaxMarks float64
}

// GradeOutcome is the tagged result for one item: either Score/Remarks, or Err.
type GradeOutcome struct {
	ID      string
	Score   float64
	Remarks string
	Err     error
}

// Grader grades a batch of free-text answers in one request. Score is in
// absolute marks, between 0 and the item's MaxMarks.
type Grader interface {
	GradeBatch(ctx context.Context, items []GradeItem) ([]GradeOutcome, error)
}

// ReportInput is what the summarizer sees of a session.
type ReportInput struct {
	SessionID   uuid.UUID
	StudentName string
	ExamType    string
	Status      model.SessionStatus
	TrustScore  int
	Score       *float64
	Percentage  *float64
	Logs        []model.ViolationLogEntry
}

// Summarizer turns a violation log and score into an integrity report.
type Summarizer interface {
	Summarize(ctx context.Context, in ReportInput) (*model.IntegrityReport, error)
}

// FaceClassifier counts the faces visible in one webcam frame.
type FaceClassifier interface {
	CountFaces(ctx context.Context, image []byte) (int, error)
}

// QuestionExtractor recovers draft questions from an uploaded paper.
type QuestionExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (*model.ExtractionResult, error)
}

// EventPublisher broadcasts session events. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event model.SessionEvent) error
}

// ReportScheduler queues background report generation.
type ReportScheduler interface {
	ScheduleReport(ctx context.Context, sessionID uuid.UUID) error
}
