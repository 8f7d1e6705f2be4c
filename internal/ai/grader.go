package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/stemsi/secureeval-backend/internal/service"
)

const graderSystemPrompt = "You are an exam grader. For every answer, award a score in marks between 0 and the " +
	"question's max_marks, partial credit allowed, and add a one-sentence remark. Respond with a JSON object " +
	`{"results": [{"id": "<question id>", "score": <number>, "remarks": "<text>"}]} containing one entry per question.`

// Grader grades free-text answers through the chat completion API, all
// questions of a submission in one request.
type Grader struct {
	client *Client
}

// NewGrader creates a new Grader.
func NewGrader(client *Client) *Grader {
	return &Grader{client: client}
}

// GradeBatch returns one outcome per item, in item order. Items the model
// skipped or answered malformed carry Err; the batch itself only fails when
// the request or the envelope fails.
func (g *Grader) GradeBatch(ctx context.Context, items []service.GradeItem) ([]service.GradeOutcome, error) {
	if len(items) == 0 {
		return nil, nil
	}

	content, err := g.client.completeJSON(ctx, "grade", graderSystemPrompt, buildGradePrompt(items), gradeBatchSchema)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(content, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	parsed := make(map[string]service.GradeOutcome, len(envelope.Results))
	for _, raw := range envelope.Results {
		if out, ok := parseGradeResult(raw); ok {
			parsed[out.ID] = out
		}
	}

	outcomes := make([]service.GradeOutcome, 0, len(items))
	for _, item := range items {
		out, ok := parsed[item.ID]
		if !ok {
			out = service.GradeOutcome{ID: item.ID, Err: fmt.Errorf("%w: no result for question %s", ErrInvalidResponse, item.ID)}
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// parseGradeResult validates one result entry. ok is false when no question id
// can be recovered from it.
func parseGradeResult(raw json.RawMessage) (service.GradeOutcome, bool) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return service.GradeOutcome{}, false
	}

	obj, _ := doc.(map[string]any)
	id := resultID(obj["id"])
	if id == "" {
		return service.GradeOutcome{}, false
	}
	if err := gradeItemSchema.Validate(doc); err != nil {
		return service.GradeOutcome{ID: id, Err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}, true
	}

	score, _ := obj["score"].(float64)
	remarks, _ := obj["remarks"].(string)
	return service.GradeOutcome{ID: id, Score: score, Remarks: remarks}, true
}

func resultID(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func buildGradePrompt(items []service.GradeItem) string {
	type promptItem struct {
		ID       string  `json:"id"`
		MaxMarks float64 `json:"max_marks"`
		Question string  `json:"question"`
		Answer   string  `json:"answer"`
	}

	payload := make([]promptItem, 0, len(items))
	for _, item := range items {
		payload = append(payload, promptItem{ID: item.ID, MaxMarks: item.MaxMarks, Question: item.Question, Answer: item.Answer})
	}
	data, _ := json.MarshalIndent(payload, "", "  ")

	builder := strings.Builder{}
	builder.WriteString("# Answers to grade\n")
	builder.Write(data)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}
