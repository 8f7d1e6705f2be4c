package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/response"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func (e *testEnv) upload(t *testing.T, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/question-sets/extract", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.adminToken)
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndFetchQuestionSet(t *testing.T) {
	env := newTestEnv(t)
	correct := 2

	rec := env.do(t, http.MethodPost, "/api/v1/admin/question-sets", model.CreateQuestionSetRequest{
		Title:   "Arithmetic",
		Subject: "Math",
		Questions: []model.QuestionInput{
			{Text: "1 + 1 = ?", Type: "OBJECTIVE", Options: []string{"1", "3", "2"}, CorrectIndex: &correct},
			{Text: "Prove it.", Type: "FREE_TEXT", MaxMarks: 4},
		},
	}, env.adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		QuestionSet model.QuestionSet `json:"question_set"`
	}](t, rec).Data.QuestionSet
	require.Len(t, created.Questions, 2)
	require.InDelta(t, 5.0, created.TotalMarks(), 1e-9)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/question-sets/"+created.ID.String(), nil, env.adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "correct_index")

	rec = env.do(t, http.MethodGet, "/api/v1/admin/question-sets", nil, env.adminToken)
	list := decode[struct {
		QuestionSets []model.QuestionSetSummary `json:"question_sets"`
	}](t, rec).Data.QuestionSets
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].QuestionCount)
}

func TestCreateQuestionSetValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/question-sets", map[string]any{"title": "Empty"}, env.adminToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]any](t, rec)
	require.Equal(t, response.ErrValidation, body.Error.Code)
	require.Contains(t, body.Error.Fields, "questions")

	rec = env.do(t, http.MethodGet, "/api/v1/admin/question-sets/1b4e28ba-2fa1-11d2-883f-0016d3cca427", nil, env.adminToken)
	requireError(t, rec, http.StatusNotFound, response.ErrQuestionSetNotFound)
}

func TestExtractQuestionsUploadChecks(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "", "", nil)
	requireError(t, rec, http.StatusBadRequest, response.ErrFileRequired)

	rec = env.upload(t, "file", "big.png", append(pngHeader, bytes.Repeat([]byte{0}, 2048)...))
	requireError(t, rec, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)

	rec = env.upload(t, "file", "notes.png", []byte(strings.Repeat("plain text ", 10)))
	requireError(t, rec, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile)

	// valid image, but no OCR collaborator is configured
	rec = env.upload(t, "file", "paper.png", pngHeader)
	requireError(t, rec, http.StatusServiceUnavailable, response.ErrCollaboratorUnavailable)
	require.Equal(t, "5", rec.Header().Get("Retry-After"))
}
