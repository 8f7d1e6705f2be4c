package websocket

import "github.com/stemsi/secureeval-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal Action = "signal"
	ActionFrame  Action = "frame"
	ActionSubmit Action = "submit"
	ActionStatus Action = "status"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SignalRequest reports a client-side classified signal.
type SignalRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind" binding:"required,oneof=NOMINAL NO_FACE MULTIPLE_FACES"`
	Faces  int    `json:"faces" binding:"omitempty,min=0,max=100"`
}

// FrameRequest carries one base64 webcam frame for server-side classification.
type FrameRequest struct {
	Action Action `json:"action"`
	Frame  string `json:"frame" binding:"required"`
}

// SubmitRequest is sent by the client to finish and grade the exam.
type SubmitRequest struct {
	Action  Action         `json:"action"`
	Answers map[string]any `json:"answers" binding:"required"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSignal     Event = "signal"
	EventStatus     Event = "status"
	EventGraded     Event = "graded"
	EventTerminated Event = "terminated"
	EventPong       Event = "pong"
)

type SignalResponse struct {
	Event   Event                `json:"event"`
	Outcome *model.SignalOutcome `json:"outcome"`
}

type StatusResponse struct {
	Event  Event             `json:"event"`
	Status *model.StatusView `json:"status"`
}

type GradedResponse struct {
	Event  Event                   `json:"event"`
	Result *model.SubmissionResult `json:"result"`
}

// TerminatedResponse is pushed when the session is terminated, whatever
// terminated it.
type TerminatedResponse struct {
	Event             Event   `json:"event"`
	TrustScore        int     `json:"trust_score"`
	TerminationReason *string `json:"termination_reason,omitempty"`
}

type ErrorResponse struct {
	Event     Event             `json:"event"`
	Code      string            `json:"code"`
	Error     string            `json:"error"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
