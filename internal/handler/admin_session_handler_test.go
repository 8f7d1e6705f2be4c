package handler

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/response"
	"github.com/stemsi/secureeval-backend/internal/service"
)

func TestAdminAssignSession(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/sessions", map[string]string{
		"student_id":      "student-9",
		"student_name":    "Grace",
		"exam_type":       "midterm",
		"question_set_id": qs.ID.String(),
	}, env.adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode[struct {
		Session model.Session `json:"session"`
	}](t, rec)
	require.Equal(t, model.SessionStatusActive, body.Data.Session.Status)
	require.Equal(t, model.InitialTrustScore, body.Data.Session.TrustScore)
	require.Equal(t, 2, body.Data.Session.TotalQuestions)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/sessions", map[string]string{
		"student_id":      "student-9",
		"student_name":    "Grace",
		"question_set_id": "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
	}, env.adminToken)
	requireError(t, rec, http.StatusNotFound, response.ErrQuestionSetNotFound)
}

func TestAdminRoutesRejectStudentTokens(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/admin/sessions", nil, env.studentToken)
	requireError(t, rec, http.StatusForbidden, response.ErrAdminAccessOnly)
}

func TestAdminListSessionsPaginates(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	for i := 0; i < 5; i++ {
		env.assign(t, qs, fmt.Sprintf("student-%d", i))
	}

	rec := env.do(t, http.MethodGet, "/api/v1/admin/sessions?per_page=2&page=2", nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Sessions []model.Session `json:"sessions"`
	}](t, rec)
	require.Len(t, body.Data.Sessions, 2)
	require.NotNil(t, body.Pagination)
	require.Equal(t, 5, body.Pagination.TotalItems)
	require.Equal(t, 3, body.Pagination.TotalPages)
	require.Equal(t, 2, body.Pagination.Page)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/sessions?status=ASLEEP", nil, env.adminToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/sessions?student_id=student-3", nil, env.adminToken)
	body = decode[struct {
		Sessions []model.Session `json:"sessions"`
	}](t, rec)
	require.Len(t, body.Data.Sessions, 1)
	require.Equal(t, "student-3", body.Data.Sessions[0].StudentID)
}

func TestAdminSignalsTerminateAtThreshold(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")
	path := "/api/v1/admin/sessions/" + sess.ID.String()

	var last model.SignalOutcome
	for i := 0; i < 6; i++ {
		rec := env.do(t, http.MethodPost, path+"/signals", map[string]string{"kind": "NO_FACE"}, env.adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		last = decode[struct {
			Outcome model.SignalOutcome `json:"outcome"`
		}](t, rec).Data.Outcome
		if i < 5 {
			require.Equal(t, model.SessionStatusFlagged, last.Status)
		}
	}
	require.Equal(t, model.SessionStatusTerminated, last.Status)
	require.Equal(t, 40, last.TrustScore)
	require.NotNil(t, last.TerminationReason)

	rec := env.do(t, http.MethodPost, path+"/signals", map[string]string{"kind": "NO_FACE"}, env.adminToken)
	after := decode[struct {
		Outcome model.SignalOutcome `json:"outcome"`
	}](t, rec).Data.Outcome
	require.True(t, after.NoOp)
	require.Equal(t, 40, after.TrustScore)

	rec = env.do(t, http.MethodGet, path+"/logs", nil, env.adminToken)
	logs := decode[struct {
		Logs []model.ViolationLogEntry `json:"logs"`
	}](t, rec).Data.Logs
	require.Len(t, logs, 6)
	require.True(t, strings.HasPrefix(logs[5].Message, "Terminated:"))

	rec = env.do(t, http.MethodGet, path+"/status", nil, env.adminToken)
	status := decode[struct {
		Status model.StatusView `json:"status"`
	}](t, rec).Data.Status
	require.Len(t, status.RecentLogs, 5)
	require.Equal(t, model.SessionStatusTerminated, status.Status)
}

func TestAdminTerminateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")
	path := "/api/v1/admin/sessions/" + sess.ID.String() + "/terminate"

	rec := env.do(t, http.MethodPost, path, nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[struct {
		Outcome model.TerminationOutcome `json:"outcome"`
	}](t, rec).Data.Outcome
	require.Equal(t, model.SessionStatusTerminated, first.Status)
	require.False(t, first.NoOp)
	require.NotNil(t, first.TerminationReason)

	rec = env.do(t, http.MethodPost, path, map[string]string{"reason": "again"}, env.adminToken)
	second := decode[struct {
		Outcome model.TerminationOutcome `json:"outcome"`
	}](t, rec).Data.Outcome
	require.True(t, second.NoOp)
	require.Equal(t, *first.TerminationReason, *second.TerminationReason)

	// the student can no longer submit for a grade
	rec = env.do(t, http.MethodPost, "/api/v1/student/sessions/"+sess.ID.String()+"/submit",
		map[string]any{"answers": map[string]any{"0": 1}}, env.studentToken)
	result := decode[struct {
		Result model.SubmissionResult `json:"result"`
	}](t, rec).Data.Result
	require.True(t, result.NoOp)
	require.Equal(t, model.SessionStatusTerminated, result.Status)
	require.Nil(t, result.Score)
}

func TestAdminAppendLog(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")
	path := "/api/v1/admin/sessions/" + sess.ID.String() + "/logs"

	rec := env.do(t, http.MethodPost, path, map[string]string{"message": "Proctor checked the room"}, env.adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[struct {
		Log model.ViolationLogEntry `json:"log"`
	}](t, rec).Data.Log
	require.Equal(t, sess.ID, entry.SessionID)

	rec = env.do(t, http.MethodPost, path, map[string]string{"message": ""}, env.adminToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, path, nil, env.adminToken)
	logs := decode[struct {
		Logs []model.ViolationLogEntry `json:"logs"`
	}](t, rec).Data.Logs
	require.Len(t, logs, 1)
	require.Equal(t, "Proctor checked the room", logs[0].Message)
}

func TestAdminReportLifecycle(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")
	path := "/api/v1/admin/sessions/" + sess.ID.String() + "/report"

	rec := env.do(t, http.MethodGet, path, nil, env.adminToken)
	requireError(t, rec, http.StatusNotFound, response.ErrReportNotGenerated)

	rec = env.do(t, http.MethodPost, path, nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	generated := decode[struct {
		Report model.IntegrityReport `json:"report"`
	}](t, rec).Data.Report
	require.True(t, generated.Degraded)
	require.Equal(t, model.AssessmentUnknown, generated.Assessment)
	require.Equal(t, model.DegradedReportSummary, generated.SummaryText)

	rec = env.do(t, http.MethodGet, path, nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[struct {
		Report model.IntegrityReport `json:"report"`
	}](t, rec).Data.Report
	require.True(t, stored.Degraded)

	status, err := env.sessions.GetStatus(t.Context(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, model.InitialTrustScore, status.TrustScore)
}

func TestAdminDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	sess := env.assign(t, qs, "student-1")
	path := "/api/v1/admin/sessions/" + sess.ID.String()

	rec := env.do(t, http.MethodDelete, path, nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, path, nil, env.adminToken)
	requireError(t, rec, http.StatusNotFound, response.ErrSessionNotFound)
}

func TestAdminDashboard(t *testing.T) {
	env := newTestEnv(t)
	qs := env.seedQuestionSet(t)
	env.assign(t, qs, "student-1")
	terminated := env.assign(t, qs, "student-2")
	_, err := env.sessions.Terminate(t.Context(), terminated.ID, "")
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/v1/admin/dashboard", nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[struct {
		Stats model.DashboardStats `json:"stats"`
	}](t, rec).Data.Stats
	require.Equal(t, 2, stats.TotalSessions)
	require.Equal(t, 1, stats.ActiveSessions)
	require.Equal(t, 1, stats.TerminatedSessions)
	require.Equal(t, 1, stats.TotalQuestionSets)
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
		{service.ErrQuestionSetNotFound, http.StatusNotFound, response.ErrQuestionSetNotFound},
		{service.ErrReportNotGenerated, http.StatusNotFound, response.ErrReportNotGenerated},
		{service.ErrNotSessionOwner, http.StatusForbidden, response.ErrNotSessionOwner},
		{service.ErrSubmissionInProgress, http.StatusConflict, response.ErrSubmissionInProgress},
		{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
		{service.ErrUnsupportedFileType, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile},
		{service.ErrExtractionFailed, http.StatusBadGateway, response.ErrExtractionFailed},
		{fmt.Errorf("wrapped: %w", service.ErrInvalidInput), http.StatusBadRequest, response.ErrInvalidPayload},
		{service.ErrCollaboratorUnavailable, http.StatusServiceUnavailable, response.ErrCollaboratorUnavailable},
		{fmt.Errorf("get: %w", service.ErrStorageFailure), http.StatusServiceUnavailable, response.ErrStorageUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tc := range cases {
		status, code := statusForError(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page, p := paginate(items, 3, 2)
	require.Equal(t, []int{5}, page)
	require.Equal(t, 3, p.TotalPages)

	page, p = paginate(items, 9, 2)
	require.Empty(t, page)
	require.Equal(t, 9, p.Page)

	page, p = paginate(items, 0, 0)
	require.Len(t, page, 5)
	require.Equal(t, 1, p.Page)
	require.Equal(t, defaultPerPage, p.PerPage)
}
