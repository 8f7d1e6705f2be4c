package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/secureeval-backend/internal/model"
)

func TestEvaluateMixedSubmission(t *testing.T) {
	grader := &fakeGrader{outcomes: []GradeOutcome{{ID: "1", Score: 0.5, Remarks: "Partially correct"}}}
	ev := NewEvaluator(grader, testLogger()).Evaluate(context.Background(), twoQuestionSet().Questions, map[string]string{
		"0": "1",
		"1": "Plants turn light into food.",
	})

	require.Equal(t, 1.5, ev.Score)
	require.Equal(t, 2.0, ev.TotalMarks)
	require.Equal(t, 75.0, ev.Percentage)
	require.Equal(t, 2, ev.TotalQuestions)
	require.Zero(t, ev.Fallbacks)

	require.True(t, ev.Feedback["0"].Correct)
	require.Equal(t, 1.0, ev.Feedback["0"].Score)
	require.Equal(t, 0.5, ev.Feedback["1"].Score)
	require.Equal(t, "Partially correct", ev.Feedback["1"].Remarks)

	require.Len(t, grader.items, 1)
	require.Equal(t, []GradeItem{{ID: "1", Question: "Explain photosynthesis.", Answer: "Plants turn light into food.", MaxMarks: 1}}, grader.items[0])
}

func TestEvaluateUnansweredFreeTextSkipsGrader(t *testing.T) {
	grader := &fakeGrader{}
	ev := NewEvaluator(grader, testLogger()).Evaluate(context.Background(), twoQuestionSet().Questions, map[string]string{
		"0": "1",
		"1": "   ",
	})

	require.Zero(t, grader.calls.Load())
	require.Equal(t, 1.0, ev.Score)
	require.Equal(t, 50.0, ev.Percentage)
	require.Equal(t, unansweredRemark, ev.Feedback["1"].Remarks)
	require.Zero(t, ev.Feedback["1"].Score)
}

func TestEvaluateGraderFailureFallsBackToZero(t *testing.T) {
	grader := &fakeGrader{err: errors.New("quota exceeded")}
	ev := NewEvaluator(grader, testLogger()).Evaluate(context.Background(), twoQuestionSet().Questions, map[string]string{
		"0": "1",
		"1": "An answer",
	})

	require.Equal(t, 1.0, ev.Score)
	require.Equal(t, 1, ev.Fallbacks)
	require.Equal(t, GradingFailedRemark, ev.Feedback["1"].Remarks)
	require.Zero(t, ev.Feedback["1"].Score)
}

func TestEvaluateNilGraderFallsBack(t *testing.T) {
	ev := NewEvaluator(nil, testLogger()).Evaluate(context.Background(), twoQuestionSet().Questions, map[string]string{
		"1": "An answer",
	})

	require.Zero(t, ev.Score)
	require.Equal(t, 1, ev.Fallbacks)
	require.Equal(t, GradingFailedRemark, ev.Feedback["1"].Remarks)
}

func TestEvaluatePerItemFailuresAndClamping(t *testing.T) {
	questions := []model.Question{
		{ID: "a", Text: "Q a", Type: model.QuestionTypeFreeText, MaxMarks: 2},
		{ID: "b", Text: "Q b", Type: model.QuestionTypeFreeText, MaxMarks: 2},
		{ID: "c", Text: "Q c", Type: model.QuestionTypeFreeText, MaxMarks: 2},
		{ID: "d", Text: "Q d", Type: model.QuestionTypeFreeText, MaxMarks: 2},
	}
	grader := &fakeGrader{outcomes: []GradeOutcome{
		{ID: "a", Score: 7, Remarks: "<b>Great</b>"},
		{ID: "b", Score: -3},
		{ID: "c", Err: errors.New("unparseable")},
	}}

	ev := NewEvaluator(grader, testLogger()).Evaluate(context.Background(), questions, map[string]string{
		"a": "x", "b": "y", "c": "z", "d": "w",
	})

	require.Equal(t, int32(1), grader.calls.Load())
	require.Equal(t, 2.0, ev.Feedback["a"].Score)
	require.Equal(t, "Great", ev.Feedback["a"].Remarks)
	require.Zero(t, ev.Feedback["b"].Score)
	require.Equal(t, GradingFailedRemark, ev.Feedback["c"].Remarks)
	require.Equal(t, GradingFailedRemark, ev.Feedback["d"].Remarks)
	require.Equal(t, 2, ev.Fallbacks)
	require.Equal(t, 2.0, ev.Score)
	require.Equal(t, 8.0, ev.TotalMarks)
	require.Equal(t, 25.0, ev.Percentage)
}

func TestEvaluateObjectiveParsing(t *testing.T) {
	questions := twoQuestionSet().Questions[:1]
	e := NewEvaluator(nil, testLogger())

	for answer, want := range map[string]bool{
		"1":    true,
		" 1 ":  true,
		"0":    false,
		"Mars": false,
		"1.5":  false,
	} {
		ev := e.Evaluate(context.Background(), questions, map[string]string{"0": answer})
		require.Equal(t, want, ev.Feedback["0"].Correct, "answer %q", answer)
	}
}

func TestEvaluateIgnoresUnknownIDsAndZeroMarks(t *testing.T) {
	ev := NewEvaluator(nil, testLogger()).Evaluate(context.Background(), nil, map[string]string{"99": "1"})
	require.Zero(t, ev.Score)
	require.Zero(t, ev.TotalMarks)
	require.Zero(t, ev.Percentage)
	require.Empty(t, ev.Feedback)
}

func TestEvaluateScoreNeverExceedsTotal(t *testing.T) {
	questions := []model.Question{
		{ID: "0", Type: model.QuestionTypeObjective, Options: []string{"a", "b"}, CorrectIndex: intPtr(0), MaxMarks: 3},
		{ID: "1", Type: model.QuestionTypeFreeText, MaxMarks: 1},
	}
	grader := &fakeGrader{outcomes: []GradeOutcome{{ID: "1", Score: math.Inf(1)}}}
	ev := NewEvaluator(grader, testLogger()).Evaluate(context.Background(), questions, map[string]string{"0": "0", "1": "text"})

	require.LessOrEqual(t, ev.Score, ev.TotalMarks)
	require.Equal(t, 4.0, ev.Score)
	require.Equal(t, 100.0, ev.Percentage)
}

func TestEvaluateFractionalMarksStayWithinBounds(t *testing.T) {
	cases := []struct {
		name      string
		questions []model.Question
		answers   map[string]string
		want      float64
	}{
		{
			name: "sub-cent question",
			questions: []model.Question{
				{ID: "0", Type: model.QuestionTypeObjective, Options: []string{"a", "b"}, CorrectIndex: intPtr(0), MaxMarks: 0.005},
			},
			answers: map[string]string{"0": "0"},
			want:    100,
		},
		{
			name: "eighths",
			questions: []model.Question{
				{ID: "0", Type: model.QuestionTypeObjective, Options: []string{"a", "b"}, CorrectIndex: intPtr(0), MaxMarks: 0.125},
				{ID: "1", Type: model.QuestionTypeObjective, Options: []string{"a", "b"}, CorrectIndex: intPtr(1), MaxMarks: 0.125},
				{ID: "2", Type: model.QuestionTypeObjective, Options: []string{"a", "b"}, CorrectIndex: intPtr(0), MaxMarks: 0.125},
			},
			answers: map[string]string{"0": "0", "1": "1", "2": "0"},
			want:    100,
		},
		{
			name: "eighths partly wrong",
			questions: []model.Question{
				{ID: "0", Type: model.QuestionTypeObjective, Options: []string{"a", "b"}, CorrectIndex: intPtr(0), MaxMarks: 0.125},
				{ID: "1", Type: model.QuestionTypeObjective, Options: []string{"a", "b"}, CorrectIndex: intPtr(1), MaxMarks: 0.125},
				{ID: "2", Type: model.QuestionTypeObjective, Options: []string{"a", "b"}, CorrectIndex: intPtr(0), MaxMarks: 0.125},
			},
			answers: map[string]string{"0": "0", "1": "0", "2": "0"},
			want:    66.67,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := NewEvaluator(nil, testLogger()).Evaluate(context.Background(), tc.questions, tc.answers)
			require.GreaterOrEqual(t, ev.Score, 0.0)
			require.LessOrEqual(t, ev.Score, ev.TotalMarks)
			require.LessOrEqual(t, ev.Percentage, 100.0)
			require.InDelta(t, tc.want, ev.Percentage, 1e-9)
		})
	}
}

func TestNormalizeAnswers(t *testing.T) {
	got := NormalizeAnswers(map[string]any{
		"0": float64(2),
		"1": "free text",
		"2": 1.5,
		"3": true,
		"4": nil,
		"5": 3,
	})
	require.Equal(t, map[string]string{
		"0": "2",
		"1": "free text",
		"2": "1.5",
		"3": "",
		"4": "",
		"5": "3",
	}, got)
}
