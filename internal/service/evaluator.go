package service

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/observability"
)

const (
	// GradingFailedRemark is recorded for free-text answers the grader could not score.
	GradingFailedRemark = "AI Grading Failed"
	unansweredRemark    = "No answer submitted"
	maxRemarkLength     = 500
)

// Evaluation is the outcome of grading one submission.
type Evaluation struct {
	Score          float64
	TotalQuestions int
	TotalMarks     float64
	Percentage     float64
	Feedback       map[string]model.QuestionFeedback
	Fallbacks      int
}

// Evaluator grades objective questions locally and free-text questions in a
// single batch through the Grader. It never fails: every question ends up
// with a score.
type Evaluator struct {
	grader    Grader
	sanitizer *bluemonday.Policy
	log       zerolog.Logger
}

// NewEvaluator creates a new Evaluator. A nil grader scores every answered
// free-text question as a grading failure.
func NewEvaluator(grader Grader, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		grader:    grader,
		sanitizer: bluemonday.StrictPolicy(),
		log:       log.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate grades answers against questions. Answers for unknown question ids
// are ignored; unanswered questions score zero.
func (e *Evaluator) Evaluate(ctx context.Context, questions []model.Question, answers map[string]string) Evaluation {
	start := time.Now()
	ev := Evaluation{
		TotalQuestions: len(questions),
		Feedback:       make(map[string]model.QuestionFeedback, len(questions)),
	}

	var pending []GradeItem
	for i, q := range questions {
		id := q.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		marks := q.Marks()
		ev.TotalMarks += marks

		answer, answered := answers[id]
		answer = strings.TrimSpace(answer)
		answered = answered && answer != ""

		fb := model.QuestionFeedback{
			QuestionID: id,
			Type:       q.Type,
			Answer:     answer,
			MaxMarks:   marks,
		}

		switch {
		case !answered:
			fb.Remarks = unansweredRemark
		case q.Type == model.QuestionTypeFreeText:
			pending = append(pending, GradeItem{ID: id, Question: q.Text, Answer: answer, MaxMarks: marks})
			continue
		default:
			fb.Correct = objectiveCorrect(q, answer)
			if fb.Correct {
				fb.Score = marks
			}
		}
		ev.Feedback[id] = fb
	}

	if len(pending) > 0 {
		e.gradeFreeText(ctx, pending, &ev)
	}

	var sum float64
	for _, fb := range ev.Feedback {
		sum += fb.Score
	}
	// Rounding must not lift the score above the total for fractional marks.
	ev.Score = math.Min(round2(sum), ev.TotalMarks)
	if ev.TotalMarks > 0 {
		ev.Percentage = clamp(round2(sum/ev.TotalMarks*100), 0, 100)
	}

	observability.GradingDuration().Observe(time.Since(start).Seconds())
	return ev
}

func (e *Evaluator) gradeFreeText(ctx context.Context, items []GradeItem, ev *Evaluation) {
	outcomes := map[string]GradeOutcome{}

	if e.grader != nil {
		results, err := e.grader.GradeBatch(ctx, items)
		if err != nil {
			e.log.Warn().Err(err).Int("items", len(items)).Msg("AI grading failed, falling back to zero scores")
		}
		if err == nil {
			for _, r := range results {
				outcomes[r.ID] = r
			}
		}
	}

	for _, item := range items {
		fb := model.QuestionFeedback{
			QuestionID: item.ID,
			Type:       model.QuestionTypeFreeText,
			Answer:     item.Answer,
			MaxMarks:   item.MaxMarks,
		}

		out, ok := outcomes[item.ID]
		if !ok || out.Err != nil {
			fb.Remarks = GradingFailedRemark
			ev.Fallbacks++
			observability.GradingFallbacks().Inc()
			ev.Feedback[item.ID] = fb
			continue
		}

		fb.Score = clamp(out.Score, 0, item.MaxMarks)
		fb.Correct = fb.Score >= 0.5*item.MaxMarks
		fb.Remarks = e.cleanRemark(out.Remarks)
		ev.Feedback[item.ID] = fb
	}
}

func (e *Evaluator) cleanRemark(remark string) string {
	clean := strings.TrimSpace(e.sanitizer.Sanitize(remark))
	if r := []rune(clean); len(r) > maxRemarkLength {
		clean = string(r[:maxRemarkLength])
	}
	return clean
}

// objectiveCorrect compares the submitted option index with the answer key.
// Unparseable answers are simply wrong.
func objectiveCorrect(q model.Question, answer string) bool {
	if q.CorrectIndex == nil {
		return false
	}
	idx, err := strconv.Atoi(answer)
	if err != nil {
		return false
	}
	return idx == *q.CorrectIndex
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// NormalizeAnswers converts a decoded JSON answer map into strings. Integral
// numbers become their decimal form; values of any other kind become "".
func NormalizeAnswers(raw map[string]any) map[string]string {
	answers := make(map[string]string, len(raw))
	for id, v := range raw {
		switch val := v.(type) {
		case string:
			answers[id] = val
		case float64:
			if val == math.Trunc(val) && !math.IsInf(val, 0) {
				answers[id] = strconv.FormatInt(int64(val), 10)
			} else {
				answers[id] = strconv.FormatFloat(val, 'f', -1, 64)
			}
		case int:
			answers[id] = strconv.Itoa(val)
		case int64:
			answers[id] = strconv.FormatInt(val, 10)
		default:
			answers[id] = ""
		}
	}
	return answers
}
