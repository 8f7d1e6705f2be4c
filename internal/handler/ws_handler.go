package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/secureeval-backend/internal/config"
	"github.com/stemsi/secureeval-backend/internal/middleware"
	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/response"
	"github.com/stemsi/secureeval-backend/internal/service"
	"github.com/stemsi/secureeval-backend/internal/validator"
	ws "github.com/stemsi/secureeval-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the student session stream.
type WSHandler struct {
	rdb         *redis.Client
	sessions    *service.SessionService
	submissions *service.SubmissionService
	frames      *service.FrameService
	limiter     *middleware.RateLimiter
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. rdb and limiter may be nil.
func NewWSHandler(
	rdb *redis.Client,
	sessions *service.SessionService,
	submissions *service.SubmissionService,
	frames *service.FrameService,
	limiter *middleware.RateLimiter,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		rdb:         rdb,
		sessions:    sessions,
		submissions: submissions,
		frames:      frames,
		limiter:     limiter,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// sessionStream is the state of one connected student.
type sessionStream struct {
	h          *WSHandler
	conn       *ws.Conn
	sessionID  uuid.UUID
	studentID  string
	log        zerolog.Logger
	terminated atomic.Bool
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:id/stream
// Upgrades to WebSocket for signals, frames and submission on one connection.
// A termination decided elsewhere, e.g. by a proctor, is pushed to the client.
func (h *WSHandler) SessionStream(c *gin.Context) {
	studentID := middleware.Subject(c)
	if studentID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}

	// SECURITY: the session must exist and belong to the caller before upgrading.
	sess, err := h.sessions.GetOwned(c.Request.Context(), id, studentID)
	if err != nil {
		failWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Operations started from a message finish even if the socket drops.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	s := &sessionStream{
		h:         h,
		conn:      ws.Wrap(conn),
		sessionID: id,
		studentID: studentID,
		log: h.log.With().
			Str("student_id", studentID).
			Str("session_id", id.String()).
			Logger(),
	}

	s.log.Info().Msg("Student connected")

	if h.rdb != nil {
		go s.watchTermination(ctx, sess.QuestionSetID)
	}
	s.handleStatus(ctx)

	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			break
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.writeError(response.ErrInvalidPayload, nil)
			continue
		}

		switch env.Action {
		case ws.ActionSignal:
			s.handleSignal(ctx, data)
		case ws.ActionFrame:
			s.handleFrame(ctx, data)
		case ws.ActionSubmit:
			s.handleSubmit(ctx, data)
		case ws.ActionStatus:
			s.handleStatus(ctx)
		case ws.ActionPing:
			_ = s.conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			s.writeError(response.ErrInvalidPayload, map[string]string{"action": "unknown action: " + string(env.Action)})
		}
	}
}

func (s *sessionStream) handleSignal(ctx context.Context, data []byte) {
	if !s.allow() {
		return
	}

	var req ws.SignalRequest
	if !s.decode(data, &req) {
		return
	}

	outcome, err := s.h.sessions.ReportSignal(ctx, s.sessionID, model.Signal{Kind: model.SignalKind(req.Kind), Faces: req.Faces})
	if err != nil {
		s.writeServiceError(err)
		return
	}
	s.sendOutcome(outcome)
}

func (s *sessionStream) handleFrame(ctx context.Context, data []byte) {
	if !s.allow() {
		return
	}

	var req ws.FrameRequest
	if !s.decode(data, &req) {
		return
	}

	outcome, err := s.h.frames.Analyze(ctx, s.sessionID, req.Frame)
	if err != nil {
		s.writeServiceError(err)
		return
	}
	s.sendOutcome(outcome)
}

func (s *sessionStream) handleSubmit(ctx context.Context, data []byte) {
	var req ws.SubmitRequest
	if !s.decode(data, &req) {
		return
	}

	result, err := s.h.submissions.Submit(ctx, s.sessionID, req.Answers)
	if err != nil {
		s.writeServiceError(err)
		return
	}

	s.log.Info().
		Str("status", string(result.Status)).
		Bool("no_op", result.NoOp).
		Msg("Submission handled")

	_ = s.conn.WriteTyped(ws.GradedResponse{Event: ws.EventGraded, Result: result})
	if result.Status == model.SessionStatusTerminated {
		s.handleStatus(ctx)
	}
}

func (s *sessionStream) handleStatus(ctx context.Context) {
	status, err := s.h.sessions.GetStatus(ctx, s.sessionID)
	if err != nil {
		s.writeServiceError(err)
		return
	}
	_ = s.conn.WriteTyped(ws.StatusResponse{Event: ws.EventStatus, Status: status})
	if status.Status == model.SessionStatusTerminated {
		s.notifyTerminated(status.TrustScore, status.TerminationReason)
	}
}

func (s *sessionStream) sendOutcome(outcome *model.SignalOutcome) {
	_ = s.conn.WriteTyped(ws.SignalResponse{Event: ws.EventSignal, Outcome: outcome})
	if outcome.Status == model.SessionStatusTerminated {
		s.notifyTerminated(outcome.TrustScore, outcome.TerminationReason)
	}
}

// watchTermination forwards a termination of this session published by any
// instance. It returns when ctx is cancelled.
func (s *sessionStream) watchTermination(ctx context.Context, questionSetID uuid.UUID) {
	pubsub := s.h.rdb.Subscribe(ctx, config.CacheKey.MonitorChannel(questionSetID.String()))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt model.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			if evt.SessionID == s.sessionID && evt.Type == model.EventSessionTerminated {
				s.notifyTerminated(evt.TrustScore, evt.TerminationReason)
			}
		}
	}
}

// notifyTerminated sends the terminated event at most once per connection.
func (s *sessionStream) notifyTerminated(trust int, reason *string) {
	if !s.terminated.CompareAndSwap(false, true) {
		return
	}
	_ = s.conn.WriteTyped(ws.TerminatedResponse{
		Event:             ws.EventTerminated,
		TrustScore:        trust,
		TerminationReason: reason,
	})
}

// allow applies the per-student rate limit shared with the REST endpoints.
func (s *sessionStream) allow() bool {
	if s.h.limiter == nil || s.h.limiter.Allow(s.studentID) {
		return true
	}
	s.writeError(response.ErrRateLimitExceeded, nil)
	return false
}

// decode unmarshals and validates a request, answering with an error event on failure.
func (s *sessionStream) decode(data []byte, dst interface{}) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		s.writeError(response.ErrInvalidPayload, nil)
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		s.writeError(response.ErrValidation, fields)
		return false
	}
	return true
}

func (s *sessionStream) writeServiceError(err error) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Stream action failed")
	}
	s.writeError(code, nil)
}

func (s *sessionStream) writeError(code response.ErrCode, fields map[string]string) {
	_ = s.conn.WriteError(string(code), response.GetMessage(code), response.IsRetryable(code), fields)
}
