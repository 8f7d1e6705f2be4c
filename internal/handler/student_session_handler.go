package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/secureeval-backend/internal/middleware"
	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/response"
	"github.com/stemsi/secureeval-backend/internal/service"
	"github.com/stemsi/secureeval-backend/internal/validator"
)

// StudentSessionHandler serves the exam-taking endpoints. Every route is
// scoped to sessions owned by the token subject.
type StudentSessionHandler struct {
	sessions    *service.SessionService
	submissions *service.SubmissionService
	frames      *service.FrameService
}

// NewStudentSessionHandler creates a new StudentSessionHandler.
func NewStudentSessionHandler(sessions *service.SessionService, submissions *service.SubmissionService, frames *service.FrameService) *StudentSessionHandler {
	return &StudentSessionHandler{
		sessions:    sessions,
		submissions: submissions,
		frames:      frames,
	}
}

// studentSessionView hides the answer sheet and the integrity report from students.
type studentSessionView struct {
	ID                uuid.UUID           `json:"id"`
	ExamType          string              `json:"exam_type"`
	QuestionSetID     uuid.UUID           `json:"question_set_id"`
	Status            model.SessionStatus `json:"status"`
	TrustScore        int                 `json:"trust_score"`
	TerminationReason *string             `json:"termination_reason,omitempty"`
	Score             *float64            `json:"score,omitempty"`
	Percentage        *float64            `json:"percentage,omitempty"`
	TotalQuestions    int                 `json:"total_questions"`
	TotalMarks        float64             `json:"total_marks"`
	CreatedAt         time.Time           `json:"created_at"`
	FinishedAt        *time.Time          `json:"finished_at,omitempty"`
}

func newStudentSessionView(s *model.Session) studentSessionView {
	return studentSessionView{
		ID:                s.ID,
		ExamType:          s.ExamType,
		QuestionSetID:     s.QuestionSetID,
		Status:            s.Status,
		TrustScore:        s.TrustScore,
		TerminationReason: s.TerminationReason,
		Score:             s.Score,
		Percentage:        s.Percentage,
		TotalQuestions:    s.TotalQuestions,
		TotalMarks:        s.TotalMarks,
		CreatedAt:         s.CreatedAt,
		FinishedAt:        s.FinishedAt,
	}
}

// ListOwnSessions godoc
// GET /api/v1/student/sessions
func (h *StudentSessionHandler) ListOwnSessions(c *gin.Context) {
	studentID := middleware.Subject(c)
	if studentID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.sessions.List(c.Request.Context(), model.SessionFilter{StudentID: studentID})
	if err != nil {
		failWithError(c, err)
		return
	}

	views := make([]studentSessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, newStudentSessionView(&sessions[i]))
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": views})
}

// GetPaper godoc
// GET /api/v1/student/sessions/:id/paper
// Returns the questions without their answer key. Terminal sessions are locked.
func (h *StudentSessionHandler) GetPaper(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	paper, err := h.sessions.Paper(c.Request.Context(), sess)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// GetStatus godoc
// GET /api/v1/student/sessions/:id/status
func (h *StudentSessionHandler) GetStatus(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	status, err := h.sessions.GetStatus(c.Request.Context(), sess.ID)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": status})
}

// ReportSignal godoc
// POST /api/v1/student/sessions/:id/signals
// Applies a client-classified signal to the trust ledger.
func (h *StudentSessionHandler) ReportSignal(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req model.ReportSignalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.sessions.ReportSignal(c.Request.Context(), sess.ID, req.Signal())
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"outcome": outcome})
}

// AnalyzeFrame godoc
// POST /api/v1/student/sessions/:id/frames
// Classifies one webcam frame server-side and applies the derived signal.
func (h *StudentSessionHandler) AnalyzeFrame(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req model.AnalyzeFrameRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.frames.Analyze(c.Request.Context(), sess.ID, req.Frame)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"outcome": outcome})
}

// Submit godoc
// POST /api/v1/student/sessions/:id/submit
// Grades the answer sheet exactly once. Repeated submits replay the result.
func (h *StudentSessionHandler) Submit(c *gin.Context) {
	sess, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.submissions.Submit(c.Request.Context(), sess.ID, req.Answers)
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// ownedSession loads the :id session and checks it belongs to the caller.
func (h *StudentSessionHandler) ownedSession(c *gin.Context) (*model.Session, bool) {
	studentID := middleware.Subject(c)
	if studentID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}

	sess, err := h.sessions.GetOwned(c.Request.Context(), id, studentID)
	if err != nil {
		failWithError(c, err)
		return nil, false
	}
	return sess, true
}
