package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/service"
)

// maxPromptLogs bounds how much of a long violation log is sent to the model.
const maxPromptLogs = 200

const reporterSystemPrompt = "You review proctored exam sessions for potential academic dishonesty. Given the " +
	"violation log and result of one session, respond with a JSON object containing trust_score_estimate (0-100 or null), " +
	"assessment (one of SAFE, SUSPICIOUS, HIGH_RISK), summary (a short explanation) and suspicious_moments " +
	"(array of {timestamp, description})."

// Reporter writes advisory integrity reports through the chat completion API.
type Reporter struct {
	client *Client
	now    func() time.Time
}

// NewReporter creates a new Reporter.
func NewReporter(client *Client) *Reporter {
	return &Reporter{client: client, now: func() time.Time { return time.Now().UTC() }}
}

// Summarize analyses one session. Output is returned as the model produced it;
// bounding and sanitising is left to the caller.
func (r *Reporter) Summarize(ctx context.Context, in service.ReportInput) (*model.IntegrityReport, error) {
	content, err := r.client.completeJSON(ctx, "report", reporterSystemPrompt, buildReportPrompt(in), reportSchema)
	if err != nil {
		return nil, err
	}

	var payload struct {
		TrustScoreEstimate *float64                 `json:"trust_score_estimate"`
		Assessment         string                   `json:"assessment"`
		Summary            string                   `json:"summary"`
		SuspiciousMoments  []model.SuspiciousMoment `json:"suspicious_moments"`
	}
	if err := json.Unmarshal(content, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	report := &model.IntegrityReport{
		Assessment:        parseAssessment(payload.Assessment),
		SummaryText:       payload.Summary,
		SuspiciousMoments: payload.SuspiciousMoments,
		GeneratedAt:       r.now(),
	}
	if payload.TrustScoreEstimate != nil {
		est := int(math.Round(*payload.TrustScoreEstimate))
		report.TrustScoreEstimate = &est
	}
	return report, nil
}

// parseAssessment accepts "Safe", "high risk", "HIGH_RISK" and similar spellings.
func parseAssessment(s string) model.Assessment {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch a := model.Assessment(norm); a {
	case model.AssessmentSafe, model.AssessmentSuspicious, model.AssessmentHighRisk:
		return a
	default:
		return model.AssessmentUnknown
	}
}

func buildReportPrompt(in service.ReportInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Session\n")
	fmt.Fprintf(&builder, "Student: %s\nExam type: %s\nStatus: %s\nTrust score: %d\n", in.StudentName, in.ExamType, in.Status, in.TrustScore)
	if in.Percentage != nil {
		fmt.Fprintf(&builder, "Exam score: %.2f%%\n", *in.Percentage)
	} else {
		builder.WriteString("Exam score: not submitted\n")
	}

	logs := in.Logs
	if len(logs) > maxPromptLogs {
		fmt.Fprintf(&builder, "\n(%d earlier log entries omitted)\n", len(logs)-maxPromptLogs)
		logs = logs[len(logs)-maxPromptLogs:]
	}
	builder.WriteString("\n## Monitoring log\n")
	if len(logs) == 0 {
		builder.WriteString("No violations recorded.\n")
	}
	for _, e := range logs {
		fmt.Fprintf(&builder, "- %s %s\n", e.Timestamp.UTC().Format(time.RFC3339), e.Message)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}
