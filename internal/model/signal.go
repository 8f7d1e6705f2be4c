package model

import "fmt"

// SignalKind classifies one monitoring observation.
type SignalKind string

const (
	SignalNominal       SignalKind = "NOMINAL"
	SignalNoFace        SignalKind = "NO_FACE"
	SignalMultipleFaces SignalKind = "MULTIPLE_FACES"
)

// Signal is a classified violation signal for one observation instant.
type Signal struct {
	Kind  SignalKind `json:"kind"`
	Faces int        `json:"faces,omitempty"`
}

// IsViolation reports whether the signal penalises the session.
func (s Signal) IsViolation() bool {
	return s.Kind == SignalNoFace || s.Kind == SignalMultipleFaces
}

// Description is the human-readable reason recorded for the signal.
func (s Signal) Description() string {
	switch s.Kind {
	case SignalNoFace:
		return "No face detected"
	case SignalMultipleFaces:
		if s.Faces > 1 {
			return fmt.Sprintf("Multiple faces detected (%d)", s.Faces)
		}
		return "Multiple faces detected"
	}
	return "Nominal"
}

// SignalFromFaceCount maps a detected face count onto a signal.
func SignalFromFaceCount(n int) Signal {
	switch {
	case n <= 0:
		return Signal{Kind: SignalNoFace}
	case n == 1:
		return Signal{Kind: SignalNominal, Faces: 1}
	default:
		return Signal{Kind: SignalMultipleFaces, Faces: n}
	}
}

// ReportSignalRequest is the payload for reporting an already classified signal.
type ReportSignalRequest struct {
	Kind  string `json:"kind" binding:"required,oneof=NOMINAL NO_FACE MULTIPLE_FACES"`
	Faces int    `json:"faces" binding:"min=0,max=100"`
}

// Signal converts the request into a domain signal.
func (r ReportSignalRequest) Signal() Signal {
	return Signal{Kind: SignalKind(r.Kind), Faces: r.Faces}
}

// AnalyzeFrameRequest carries one webcam frame, base64 encoded, optionally as a data URL.
type AnalyzeFrameRequest struct {
	Frame string `json:"frame" binding:"required,min=16"`
}
