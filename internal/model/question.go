package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxMarks applies to questions that do not declare their weight.
const DefaultMaxMarks = 1.0

type QuestionType string

const (
	QuestionTypeObjective QuestionType = "OBJECTIVE"
	QuestionTypeFreeText  QuestionType = "FREE_TEXT"
)

// Question is one item of a question set. CorrectIndex is only meaningful for
// objective questions.
type Question struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Type         QuestionType `json:"type"`
	Options      []string     `json:"options,omitempty"`
	CorrectIndex *int         `json:"correct_index,omitempty"`
	MaxMarks     float64      `json:"max_marks"`
}

// Marks returns the question weight, defaulting to DefaultMaxMarks.
func (q Question) Marks() float64 {
	if q.MaxMarks <= 0 {
		return DefaultMaxMarks
	}
	return q.MaxMarks
}

// Public strips the answer key.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:       q.ID,
		Text:     q.Text,
		Type:     q.Type,
		Options:  q.Options,
		MaxMarks: q.Marks(),
	}
}

// PublicQuestion is the question content shown to students.
type PublicQuestion struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	MaxMarks float64      `json:"max_marks"`
}

// QuestionSet is an ordered collection of questions a session is graded against.
type QuestionSet struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Subject   string     `json:"subject"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

// Normalize fills missing question ids with their zero-based index and
// missing weights with DefaultMaxMarks.
func (qs *QuestionSet) Normalize() {
	for i := range qs.Questions {
		if qs.Questions[i].ID == "" {
			qs.Questions[i].ID = strconv.Itoa(i)
		}
		qs.Questions[i].MaxMarks = qs.Questions[i].Marks()
	}
}

// TotalMarks is the sum of every question's weight.
func (qs *QuestionSet) TotalMarks() float64 {
	var total float64
	for _, q := range qs.Questions {
		total += q.Marks()
	}
	return total
}

// QuestionSetSummary is the list representation of a question set.
type QuestionSetSummary struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	Subject       string    `json:"subject"`
	QuestionCount int       `json:"question_count"`
	TotalMarks    float64   `json:"total_marks"`
	CreatedAt     time.Time `json:"created_at"`
}

// Summary returns the list representation of qs.
func (qs *QuestionSet) Summary() QuestionSetSummary {
	return QuestionSetSummary{
		ID:            qs.ID,
		Title:         qs.Title,
		Subject:       qs.Subject,
		QuestionCount: len(qs.Questions),
		TotalMarks:    qs.TotalMarks(),
		CreatedAt:     qs.CreatedAt,
	}
}

// QuestionInput is one question in a create request.
type QuestionInput struct {
	ID           string   `json:"id" binding:"omitempty,max=64"`
	Text         string   `json:"text" binding:"required,min=1,max=5000"`
	Type         string   `json:"type" binding:"required,oneof=OBJECTIVE FREE_TEXT"`
	Options      []string `json:"options" binding:"omitempty,max=10,dive,max=1000"`
	CorrectIndex *int     `json:"correct_index" binding:"omitempty,min=0"`
	MaxMarks     float64  `json:"max_marks" binding:"omitempty,gt=0,lte=100"`
}

// CreateQuestionSetRequest is the payload for creating a question set.
type CreateQuestionSetRequest struct {
	Title     string          `json:"title" binding:"required,min=1,max=200"`
	Subject   string          `json:"subject" binding:"omitempty,max=100"`
	Questions []QuestionInput `json:"questions" binding:"required,min=1,max=500,dive"`
}

// ExtractionResult holds draft questions recovered from an uploaded paper.
// Correct answers are never inferred.
type ExtractionResult struct {
	Questions []Question `json:"questions"`
	Insights  string     `json:"insights"`
}
