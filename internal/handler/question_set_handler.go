package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/response"
	"github.com/stemsi/secureeval-backend/internal/service"
	"github.com/stemsi/secureeval-backend/internal/validator"
)

// multipartOverhead is the slack allowed on top of the file size for the
// multipart envelope.
const multipartOverhead = 64 << 10

// QuestionSetHandler handles question set management and paper extraction.
type QuestionSetHandler struct {
	questionSets   *service.QuestionSetService
	maxUploadBytes int64
}

// NewQuestionSetHandler creates a new QuestionSetHandler.
func NewQuestionSetHandler(questionSets *service.QuestionSetService, maxUploadBytes int64) *QuestionSetHandler {
	return &QuestionSetHandler{
		questionSets:   questionSets,
		maxUploadBytes: maxUploadBytes,
	}
}

// CreateQuestionSet godoc
// POST /api/v1/admin/question-sets
func (h *QuestionSetHandler) CreateQuestionSet(c *gin.Context) {
	var req model.CreateQuestionSetRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	qs, err := h.questionSets.Create(c.Request.Context(), req)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question_set": qs})
}

// ListQuestionSets godoc
// GET /api/v1/admin/question-sets
func (h *QuestionSetHandler) ListQuestionSets(c *gin.Context) {
	sets, err := h.questionSets.List(c.Request.Context())
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_sets": sets})
}

// GetQuestionSet godoc
// GET /api/v1/admin/question-sets/:id
// Returns the full set including the answer key.
func (h *QuestionSetHandler) GetQuestionSet(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	qs, err := h.questionSets.Get(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_set": qs})
}

// ExtractQuestions godoc
// POST /api/v1/admin/question-sets/extract
// Runs OCR over an uploaded image or PDF (multipart field "file") and returns
// draft questions. Nothing is stored; correct answers must be filled in by
// the author before creating the set.
func (h *QuestionSetHandler) ExtractQuestions(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}

	result, err := h.questionSets.Extract(c.Request.Context(), data)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"extraction": result})
}
