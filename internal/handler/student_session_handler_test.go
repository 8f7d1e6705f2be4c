package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/response"
)

func TestStudentPaperHidesAnswerKey(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")

	rec := env.do(t, http.MethodGet, "/api/v1/student/sessions/"+sess.ID.String()+"/paper", nil, env.studentToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "correct_index")

	body := decode[struct {
		Paper model.ExamPaper `json:"paper"`
	}](t, rec)
	require.False(t, body.Data.Paper.Locked)
	require.Len(t, body.Data.Paper.Questions, 2)
	require.Equal(t, "General Science", body.Data.Paper.Title)
}

func TestStudentCannotReadForeignSession(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")

	for _, path := range []string{"/paper", "/status"} {
		rec := env.do(t, http.MethodGet, "/api/v1/student/sessions/"+sess.ID.String()+path, nil, env.otherToken)
		requireError(t, rec, http.StatusForbidden, response.ErrNotSessionOwner)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/student/sessions/"+sess.ID.String()+"/signals",
		map[string]string{"kind": "NO_FACE"}, env.otherToken)
	requireError(t, rec, http.StatusForbidden, response.ErrNotSessionOwner)

	status, err := env.sessions.GetStatus(t.Context(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, 100, status.TrustScore)
}

func TestStudentSessionBadIDs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/student/sessions/not-a-uuid/status", nil, env.studentToken)
	requireError(t, rec, http.StatusBadRequest, response.ErrInvalidID)

	rec = env.do(t, http.MethodGet, "/api/v1/student/sessions/1b4e28ba-2fa1-11d2-883f-0016d3cca427/status", nil, env.studentToken)
	requireError(t, rec, http.StatusNotFound, response.ErrSessionNotFound)
}

func TestStudentRoutesRejectAdminTokens(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/student/sessions", nil, env.adminToken)
	requireError(t, rec, http.StatusForbidden, response.ErrStudentAccessOnly)

	rec = env.do(t, http.MethodGet, "/api/v1/student/sessions", nil, "")
	requireError(t, rec, http.StatusUnauthorized, response.ErrTokenInvalid)
}

func TestStudentListOwnSessions(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	env.assign(t, qs, "student-1")
	env.assign(t, qs, "student-1")
	env.assign(t, qs, "student-2")

	rec := env.do(t, http.MethodGet, "/api/v1/student/sessions", nil, env.studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "student_id")

	body := decode[struct {
		Sessions []studentSessionView `json:"sessions"`
	}](t, rec)
	require.Len(t, body.Data.Sessions, 2)
}

func TestStudentSignalValidation(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")

	rec := env.do(t, http.MethodPost, "/api/v1/student/sessions/"+sess.ID.String()+"/signals",
		map[string]string{"kind": "SLEEPING"}, env.studentToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[map[string]any](t, rec)
	require.Equal(t, response.ErrValidation, body.Error.Code)
	require.Contains(t, body.Error.Fields, "kind")
}

func TestStudentSignalFlagsSession(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")

	rec := env.do(t, http.MethodPost, "/api/v1/student/sessions/"+sess.ID.String()+"/signals",
		map[string]any{"kind": "MULTIPLE_FACES", "faces": 2}, env.studentToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[struct {
		Outcome model.SignalOutcome `json:"outcome"`
	}](t, rec)
	require.True(t, body.Data.Outcome.Applied)
	require.Equal(t, model.SessionStatusFlagged, body.Data.Outcome.Status)
	require.Equal(t, 90, body.Data.Outcome.TrustScore)
}

func TestStudentFrameAnalysis(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")
	frame := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("not really a jpeg but bytes"))
	path := "/api/v1/student/sessions/" + sess.ID.String() + "/frames"

	env.classifier.faces = 0
	rec := env.do(t, http.MethodPost, path, map[string]string{"frame": frame}, env.studentToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Outcome model.SignalOutcome `json:"outcome"`
	}](t, rec)
	require.Equal(t, model.SignalNoFace, body.Data.Outcome.Signal.Kind)
	require.Equal(t, 90, body.Data.Outcome.TrustScore)

	env.classifier.err = errors.New("vision down")
	rec = env.do(t, http.MethodPost, path, map[string]string{"frame": frame}, env.studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[struct {
		Outcome model.SignalOutcome `json:"outcome"`
	}](t, rec)
	require.True(t, body.Data.Outcome.ClassifierUnavailable)
	require.Equal(t, 90, body.Data.Outcome.TrustScore)

	rec = env.do(t, http.MethodPost, path, map[string]string{"frame": "%%%%%%%%%%%%%%%%%%%%%%"}, env.studentToken)
	requireError(t, rec, http.StatusBadRequest, response.ErrInvalidPayload)
}

func TestStudentSubmitGradesOnceAndReplays(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")
	path := "/api/v1/student/sessions/" + sess.ID.String() + "/submit"
	answers := map[string]any{"answers": map[string]any{"0": 1, "1": "Plants use light."}}

	rec := env.do(t, http.MethodPost, path, answers, env.studentToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[struct {
		Result model.SubmissionResult `json:"result"`
	}](t, rec)
	require.Equal(t, model.SessionStatusCompleted, first.Data.Result.Status)
	require.False(t, first.Data.Result.NoOp)
	require.NotNil(t, first.Data.Result.Score)
	// objective correct, free-text falls back to zero without a grader
	require.InDelta(t, 1.0, *first.Data.Result.Score, 1e-9)
	require.InDelta(t, 50.0, *first.Data.Result.Percentage, 1e-9)

	rec = env.do(t, http.MethodPost, path, map[string]any{"answers": map[string]any{"0": 0}}, env.studentToken)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[struct {
		Result model.SubmissionResult `json:"result"`
	}](t, rec)
	require.True(t, second.Data.Result.NoOp)
	require.InDelta(t, 1.0, *second.Data.Result.Score, 1e-9)

	rec = env.do(t, http.MethodGet, "/api/v1/student/sessions/"+sess.ID.String()+"/paper", nil, env.studentToken)
	paper := decode[struct {
		Paper model.ExamPaper `json:"paper"`
	}](t, rec)
	require.True(t, paper.Data.Paper.Locked)
	require.Empty(t, paper.Data.Paper.Questions)
}

func TestStudentSubmitRequiresAnswers(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")

	rec := env.do(t, http.MethodPost, "/api/v1/student/sessions/"+sess.ID.String()+"/submit", map[string]any{}, env.studentToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	require.Equal(t, response.ErrValidation, body.Error.Code)
}
