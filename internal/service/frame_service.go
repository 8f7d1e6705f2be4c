package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/observability"
)

// FrameService classifies webcam frames and feeds the result to the trust ledger.
type FrameService struct {
	sessions   *SessionService
	classifier FaceClassifier
	cfg        EngineConfig
	log        zerolog.Logger
}

// NewFrameService creates a new FrameService. A nil classifier marks every
// frame as unclassifiable.
func NewFrameService(sessions *SessionService, classifier FaceClassifier, cfg EngineConfig, log zerolog.Logger) *FrameService {
	return &FrameService{
		sessions:   sessions,
		classifier: classifier,
		cfg:        cfg.withDefaults(),
		log:        log.With().Str("component", "frame_service").Logger(),
	}
}

// Analyze counts the faces in a base64 frame and reports the derived signal.
// Terminal sessions skip classification. A classifier failure produces no
// signal and sets ClassifierUnavailable.
func (f *FrameService) Analyze(ctx context.Context, id uuid.UUID, frame string) (*model.SignalOutcome, error) {
	image, err := DecodeFrame(frame)
	if err != nil {
		return nil, err
	}

	sess, err := f.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		return outcomeFromSession(sess, true, false), nil
	}
	if f.classifier == nil {
		return outcomeFromSession(sess, false, true), nil
	}

	cctx, cancel := context.WithTimeout(ctx, f.cfg.ClassifierTimeout)
	faces, err := f.classifier.CountFaces(cctx, image)
	cancel()
	if err != nil {
		observability.ClassifierFailures().Inc()
		f.log.Warn().Err(err).Str("session_id", id.String()).Msg("Face classifier unavailable")
		return outcomeFromSession(sess, false, true), nil
	}

	return f.sessions.ReportSignal(ctx, id, model.SignalFromFaceCount(faces))
}

// DecodeFrame decodes a base64 image, accepting an optional data URL prefix.
func DecodeFrame(frame string) ([]byte, error) {
	frame = strings.TrimSpace(frame)
	if i := strings.Index(frame, ","); strings.HasPrefix(frame, "data:") && i >= 0 {
		frame = frame[i+1:]
	}
	if frame == "" {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidInput)
	}

	data, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(frame, "="))
	}
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("%w: frame is not valid base64", ErrInvalidInput)
	}
	return data, nil
}

func outcomeFromSession(sess *model.Session, noOp, unavailable bool) *model.SignalOutcome {
	return &model.SignalOutcome{
		SessionID:             sess.ID,
		Status:                sess.Status,
		TrustScore:            sess.TrustScore,
		TerminationReason:     sess.TerminationReason,
		NoOp:                  noOp,
		ClassifierUnavailable: unavailable,
	}
}
