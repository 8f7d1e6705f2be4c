package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/secureeval-backend/internal/response"
	"github.com/stemsi/secureeval-backend/internal/service"
)

// storageRetryAfter is the Retry-After hint sent with storage failures, in seconds.
const storageRetryAfter = "5"

// statusForError maps an engine error onto an HTTP status and error code.
func statusForError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrQuestionSetNotFound):
		return http.StatusNotFound, response.ErrQuestionSetNotFound
	case errors.Is(err, service.ErrReportNotGenerated):
		return http.StatusNotFound, response.ErrReportNotGenerated
	case errors.Is(err, service.ErrNotSessionOwner):
		return http.StatusForbidden, response.ErrNotSessionOwner
	case errors.Is(err, service.ErrSubmissionInProgress):
		return http.StatusConflict, response.ErrSubmissionInProgress
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, response.ErrFileTooLarge
	case errors.Is(err, service.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType, response.ErrUnsupportedFile
	case errors.Is(err, service.ErrExtractionFailed):
		return http.StatusBadGateway, response.ErrExtractionFailed
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, response.ErrInvalidPayload
	case errors.Is(err, service.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable, response.ErrCollaboratorUnavailable
	case errors.Is(err, service.ErrStorageFailure):
		return http.StatusServiceUnavailable, response.ErrStorageUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWithError writes the envelope for an engine error.
func failWithError(c *gin.Context, err error) {
	status, code := statusForError(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", storageRetryAfter)
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}

// paramID parses the :id path parameter. On failure it has already written
// the error response.
func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// paginate slices items for the requested page. Page and perPage are
// normalised to 1 and defaultPerPage when unset.
func paginate[T any](items []T, page, perPage int) ([]T, *response.Pagination) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	total := len(items)
	totalPages := (total + perPage - 1) / perPage

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return items[start:end], &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

const defaultPerPage = 20
