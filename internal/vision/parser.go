package vision

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/stemsi/secureeval-backend/internal/model"
)

const maxOptions = 4

var (
	questionLine = regexp.MustCompile(`^\s*(\d+)\s*[.)]\s*(.*)$`)
	optionLine   = regexp.MustCompile(`^\s*(?:([a-dA-D])\s*[.)]|\(([a-dA-D])\))\s*(.*)$`)
	marksSuffix  = regexp.MustCompile(`(?i)[\[(]\s*(\d+(?:\.\d+)?)\s*marks?\s*[\])]\s*$`)
)

// ParseQuestions turns OCR text into draft questions. "1." or "1)" starts a
// question; "a)", "A." or "(a)" lines are its options, up to four. Questions
// with options are objective, the rest free-text. The correct answer is never
// known from the paper, so objective drafts leave CorrectIndex unset.
func ParseQuestions(text string) *model.ExtractionResult {
	var (
		questions []model.Question
		current   *model.Question
		dropped   int
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(current.Text)
		if m := marksSuffix.FindStringSubmatch(current.Text); m != nil {
			if marks, err := strconv.ParseFloat(m[1], 64); err == nil && marks > 0 {
				current.MaxMarks = marks
			}
			current.Text = strings.TrimSpace(marksSuffix.ReplaceAllString(current.Text, ""))
		}
		if len(current.Options) >= 2 {
			current.Type = model.QuestionTypeObjective
		} else {
			current.Type = model.QuestionTypeFreeText
			current.Options = nil
		}
		if current.Text != "" {
			questions = append(questions, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := questionLine.FindStringSubmatch(line); m != nil {
			flush()
			current = &model.Question{ID: strconv.Itoa(len(questions)), Text: m[2]}
			continue
		}
		if current == nil {
			continue
		}
		if m := optionLine.FindStringSubmatch(line); m != nil {
			if len(current.Options) < maxOptions {
				current.Options = append(current.Options, strings.TrimSpace(m[3]))
			} else {
				dropped++
			}
			continue
		}
		if n := len(current.Options); n > 0 {
			current.Options[n-1] += " " + line
		} else {
			current.Text += " " + line
		}
	}
	flush()

	for i := range questions {
		questions[i].ID = strconv.Itoa(i)
	}
	return &model.ExtractionResult{Questions: questions, Insights: insights(questions, dropped)}
}

func insights(questions []model.Question, dropped int) string {
	if len(questions) == 0 {
		return "No numbered questions were found in the document."
	}
	var objective int
	for _, q := range questions {
		if q.Type == model.QuestionTypeObjective {
			objective++
		}
	}
	summary := fmt.Sprintf("Extracted %d questions: %d objective, %d free-text.", len(questions), objective, len(questions)-objective)
	if objective > 0 {
		summary += " Set the correct option of every objective question before saving."
	}
	if dropped > 0 {
		summary += fmt.Sprintf(" %d options beyond the fourth were ignored.", dropped)
	}
	return summary
}
