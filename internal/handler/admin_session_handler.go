package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/response"
	"github.com/stemsi/secureeval-backend/internal/service"
	"github.com/stemsi/secureeval-backend/internal/validator"
)

// AdminSessionHandler handles session administration, the violation log and
// integrity reports.
type AdminSessionHandler struct {
	sessions *service.SessionService
	reports  *service.ReportService
}

// NewAdminSessionHandler creates a new AdminSessionHandler.
func NewAdminSessionHandler(sessions *service.SessionService, reports *service.ReportService) *AdminSessionHandler {
	return &AdminSessionHandler{
		sessions: sessions,
		reports:  reports,
	}
}

// AssignSession godoc
// POST /api/v1/admin/sessions
// Creates an Active session of a question set for one student.
func (h *AdminSessionHandler) AssignSession(c *gin.Context) {
	var req model.AssignSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessions.Assign(c.Request.Context(), req)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": sess})
}

// ListSessions godoc
// GET /api/v1/admin/sessions?student_id=&question_set_id=&status=&page=&per_page=
func (h *AdminSessionHandler) ListSessions(c *gin.Context) {
	var q model.ListSessionsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	filter := model.SessionFilter{
		StudentID: q.StudentID,
		Status:    model.SessionStatus(q.Status),
	}
	if q.QuestionSetID != "" {
		qsID, err := uuid.Parse(q.QuestionSetID)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		filter.QuestionSetID = &qsID
	}

	sessions, err := h.sessions.List(c.Request.Context(), filter)
	if err != nil {
		failWithError(c, err)
		return
	}

	page, pagination := paginate(sessions, q.Page, q.PerPage)
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"sessions": page}, pagination)
}

// GetSession godoc
// GET /api/v1/admin/sessions/:id
func (h *AdminSessionHandler) GetSession(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// DeleteSession godoc
// DELETE /api/v1/admin/sessions/:id
// Removes the session together with its violation log.
func (h *AdminSessionHandler) DeleteSession(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "session deleted"})
}

// GetStatus godoc
// GET /api/v1/admin/sessions/:id/status
func (h *AdminSessionHandler) GetStatus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	status, err := h.sessions.GetStatus(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": status})
}

// GetLogs godoc
// GET /api/v1/admin/sessions/:id/logs
// Returns the full violation log in chronological order.
func (h *AdminSessionHandler) GetLogs(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	logs, err := h.sessions.Logs(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"logs": logs})
}

// AppendLog godoc
// POST /api/v1/admin/sessions/:id/logs
// Writes a free-form audit entry. It never changes status or trust score.
func (h *AdminSessionHandler) AppendLog(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req model.AppendLogRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	entry, err := h.sessions.AppendLog(c.Request.Context(), id, req.Message, req.Timestamp)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"log": entry})
}

// ReportSignal godoc
// POST /api/v1/admin/sessions/:id/signals
// Lets a proctor inject a classified signal, e.g. from an external camera.
func (h *AdminSessionHandler) ReportSignal(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req model.ReportSignalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.sessions.ReportSignal(c.Request.Context(), id, req.Signal())
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"outcome": outcome})
}

// Terminate godoc
// POST /api/v1/admin/sessions/:id/terminate
// Terminates the session. Terminal sessions come back unchanged with no_op set.
func (h *AdminSessionHandler) Terminate(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req model.TerminateRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	outcome, err := h.sessions.Terminate(c.Request.Context(), id, req.Reason)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"outcome": outcome})
}

// GenerateReport godoc
// POST /api/v1/admin/sessions/:id/report
// Generates and stores the advisory integrity report. A summarizer failure
// still succeeds with a degraded report.
func (h *AdminSessionHandler) GenerateReport(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	report, err := h.reports.Generate(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// GetReport godoc
// GET /api/v1/admin/sessions/:id/report
func (h *AdminSessionHandler) GetReport(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	report, err := h.reports.Get(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// GetDashboard godoc
// GET /api/v1/admin/dashboard
func (h *AdminSessionHandler) GetDashboard(c *gin.Context) {
	stats, err := h.sessions.Dashboard(c.Request.Context())
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"stats": stats})
}
