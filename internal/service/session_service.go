package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/observability"
	"github.com/stemsi/secureeval-backend/internal/repository"
)

const (
	maxLogMessageLength    = 1000
	defaultTerminateReason = "Terminated by administrator"
)

// SessionService owns the session lifecycle: assignment, violation signals,
// the violation log, termination and the read views built on top of them.
type SessionService struct {
	sessions     repository.SessionStore
	questionSets repository.QuestionSetStore
	ledger       *TrustLedger
	events       EventPublisher
	cfg          EngineConfig
	sanitizer    *bluemonday.Policy
	log          zerolog.Logger
	now          func() time.Time
}

// NewSessionService creates a new SessionService. events may be nil.
func NewSessionService(
	sessions repository.SessionStore,
	questionSets repository.QuestionSetStore,
	events EventPublisher,
	cfg EngineConfig,
	log zerolog.Logger,
) *SessionService {
	cfg = cfg.withDefaults()
	return &SessionService{
		sessions:     sessions,
		questionSets: questionSets,
		ledger:       NewTrustLedger(cfg),
		events:       events,
		cfg:          cfg,
		sanitizer:    bluemonday.StrictPolicy(),
		log:          log.With().Str("component", "session_service").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Assign creates an Active session with a full trust score for a student.
func (s *SessionService) Assign(ctx context.Context, req model.AssignSessionRequest) (*model.Session, error) {
	qsID, err := uuid.Parse(req.QuestionSetID)
	if err != nil {
		return nil, fmt.Errorf("%w: question_set_id", ErrInvalidInput)
	}
	qs, err := s.questionSets.Get(ctx, qsID)
	if err != nil {
		return nil, questionSetError("get question set", err)
	}

	sess := model.NewSession(
		strings.TrimSpace(req.StudentID),
		strings.TrimSpace(req.StudentName),
		strings.TrimSpace(req.ExamType),
		qs.ID,
		s.now(),
	)
	sess.TotalQuestions = len(qs.Questions)
	sess.TotalMarks = qs.TotalMarks()

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, sessionError("create session", err)
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("student_id", sess.StudentID).
		Str("question_set_id", qs.ID.String()).
		Msg("Session assigned")
	s.publish(ctx, model.EventFromSession(model.EventSessionAssigned, sess, "", sess.CreatedAt))
	return sess, nil
}

// Get retrieves a session by ID.
func (s *SessionService) Get(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, sessionError("get session", err)
	}
	return sess, nil
}

// GetOwned retrieves a session and checks that it belongs to studentID.
func (s *SessionService) GetOwned(ctx context.Context, id uuid.UUID, studentID string) (*model.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.StudentID != studentID {
		return nil, ErrNotSessionOwner
	}
	return sess, nil
}

// List retrieves sessions matching the filter.
func (s *SessionService) List(ctx context.Context, filter model.SessionFilter) ([]model.Session, error) {
	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, sessionError("list sessions", err)
	}
	return sessions, nil
}

// Delete removes a session together with its violation log.
func (s *SessionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.sessions.Delete(ctx, id); err != nil {
		return sessionError("delete session", err)
	}
	s.log.Info().Str("session_id", id.String()).Msg("Session deleted")
	return nil
}

// ReportSignal applies one classified signal to a session. The status check,
// trust decay and log append happen in a single atomic store update.
func (s *SessionService) ReportSignal(ctx context.Context, id uuid.UUID, sig model.Signal) (*model.SignalOutcome, error) {
	switch sig.Kind {
	case model.SignalNominal, model.SignalNoFace, model.SignalMultipleFaces:
	default:
		return nil, fmt.Errorf("%w: unknown signal kind %q", ErrInvalidInput, sig.Kind)
	}

	var (
		applied bool
		entry   *model.ViolationLogEntry
	)
	sess, err := s.sessions.Update(ctx, id, func(cur *model.Session) ([]model.ViolationLogEntry, error) {
		e, changed := s.ledger.Apply(cur, sig, s.now())
		applied, entry = changed, e
		if !changed {
			return nil, repository.ErrSkipWrite
		}
		return []model.ViolationLogEntry{*e}, nil
	})
	if err != nil {
		return nil, sessionError("apply signal", err)
	}

	outcome := &model.SignalOutcome{
		SessionID:         sess.ID,
		Status:            sess.Status,
		TrustScore:        sess.TrustScore,
		TerminationReason: sess.TerminationReason,
		Signal:            sig,
		Applied:           applied,
		NoOp:              !applied && sig.IsViolation(),
	}

	result := "ignored"
	if applied {
		result = "applied"
	}
	observability.Signals().WithLabelValues(string(sig.Kind), result).Inc()

	if !applied {
		return outcome, nil
	}

	evt := model.EventSessionSignal
	if sess.Status == model.SessionStatusTerminated {
		evt = model.EventSessionTerminated
		cause := "trust_decay"
		if s.cfg.Mode == TerminationModeZeroTolerance {
			cause = "zero_tolerance"
		}
		observability.Terminations().WithLabelValues(cause).Inc()
		s.log.Warn().
			Str("session_id", sess.ID.String()).
			Str("reason", sig.Description()).
			Int("trust_score", sess.TrustScore).
			Msg("Session terminated")
	}
	s.publish(ctx, model.EventFromSession(evt, sess, entry.Message, entry.Timestamp))
	return outcome, nil
}

// AppendLog writes a free-form audit entry to a session's violation log.
// A zero timestamp means now.
func (s *SessionService) AppendLog(ctx context.Context, id uuid.UUID, message string, at *time.Time) (*model.ViolationLogEntry, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(message))
	if clean == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if len([]rune(clean)) > maxLogMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, maxLogMessageLength)
	}

	ts := s.now()
	if at != nil && !at.IsZero() {
		ts = at.UTC()
	}

	entry := model.NewLogEntry(id, clean, ts)
	if err := s.sessions.AppendLog(ctx, entry); err != nil {
		return nil, sessionError("append log", err)
	}

	if s.events != nil {
		if sess, err := s.sessions.Get(ctx, id); err == nil {
			s.publish(ctx, model.EventFromSession(model.EventSessionLog, sess, entry.Message, entry.Timestamp))
		}
	}
	return &entry, nil
}

// GetStatus returns the session state with its latest log messages, newest first.
func (s *SessionService) GetStatus(ctx context.Context, id uuid.UUID) (*model.StatusView, error) {
	var (
		sess   *model.Session
		latest []model.ViolationLogEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sess, err = s.sessions.Get(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = s.sessions.LatestLogs(gctx, id, s.cfg.StatusLogLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, sessionError("get status", err)
	}

	return statusView(sess, latest), nil
}

// Logs returns the full violation log of a session, oldest first.
func (s *SessionService) Logs(ctx context.Context, id uuid.UUID) ([]model.ViolationLogEntry, error) {
	var logs []model.ViolationLogEntry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.sessions.Get(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		logs, err = s.sessions.ListLogs(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, sessionError("list logs", err)
	}
	return logs, nil
}

// Terminate force-terminates a session. Terminal sessions are returned unchanged
// with NoOp set.
func (s *SessionService) Terminate(ctx context.Context, id uuid.UUID, reason string) (*model.TerminationOutcome, error) {
	reason = strings.TrimSpace(s.sanitizer.Sanitize(reason))
	if reason == "" {
		reason = defaultTerminateReason
	}

	var (
		applied bool
		entry   *model.ViolationLogEntry
	)
	sess, err := s.sessions.Update(ctx, id, func(cur *model.Session) ([]model.ViolationLogEntry, error) {
		e, changed := s.ledger.Terminate(cur, reason, s.now())
		applied, entry = changed, e
		if !changed {
			return nil, repository.ErrSkipWrite
		}
		return []model.ViolationLogEntry{*e}, nil
	})
	if err != nil {
		return nil, sessionError("terminate session", err)
	}

	if applied {
		observability.Terminations().WithLabelValues("administrative").Inc()
		s.log.Warn().Str("session_id", sess.ID.String()).Str("reason", reason).Msg("Session terminated by administrator")
		s.publish(ctx, model.EventFromSession(model.EventSessionTerminated, sess, entry.Message, entry.Timestamp))
	}

	return &model.TerminationOutcome{
		SessionID:         sess.ID,
		Status:            sess.Status,
		TrustScore:        sess.TrustScore,
		TerminationReason: sess.TerminationReason,
		NoOp:              !applied,
	}, nil
}

// Paper returns the exam content for an Active or Flagged session. Terminal
// sessions only get their status and score.
func (s *SessionService) Paper(ctx context.Context, sess *model.Session) (*model.ExamPaper, error) {
	paper := &model.ExamPaper{
		SessionID:         sess.ID,
		Status:            sess.Status,
		TrustScore:        sess.TrustScore,
		TerminationReason: sess.TerminationReason,
		Score:             sess.Score,
		Percentage:        sess.Percentage,
		Locked:            sess.Status.IsTerminal(),
	}
	if paper.Locked {
		return paper, nil
	}

	qs, err := s.questionSets.Get(ctx, sess.QuestionSetID)
	if err != nil {
		return nil, questionSetError("get question set", err)
	}
	paper.Title = qs.Title
	paper.Subject = qs.Subject
	paper.ExamType = sess.ExamType
	paper.Questions = make([]model.PublicQuestion, 0, len(qs.Questions))
	for _, q := range qs.Questions {
		paper.Questions = append(paper.Questions, q.Public())
	}
	return paper, nil
}

// Dashboard returns aggregate counts across all sessions.
func (s *SessionService) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	stats, err := s.sessions.Stats(ctx)
	if err != nil {
		return nil, sessionError("dashboard stats", err)
	}
	return &stats, nil
}

func (s *SessionService) publish(ctx context.Context, evt model.SessionEvent) {
	publishEvent(ctx, s.events, evt, s.log)
}

// publishEvent delivers evt without letting a broken publisher fail the caller.
func publishEvent(ctx context.Context, events EventPublisher, evt model.SessionEvent, log zerolog.Logger) {
	if events == nil {
		return
	}
	if err := events.Publish(context.WithoutCancel(ctx), evt); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).
			Str("session_id", evt.SessionID.String()).
			Str("event", string(evt.Type)).
			Msg("Failed to publish session event")
	}
}

func statusView(sess *model.Session, latest []model.ViolationLogEntry) *model.StatusView {
	alerts := make([]string, 0, len(latest))
	for _, e := range latest {
		alerts = append(alerts, e.Message)
	}
	if latest == nil {
		latest = []model.ViolationLogEntry{}
	}
	return &model.StatusView{
		SessionID:         sess.ID,
		StudentID:         sess.StudentID,
		StudentName:       sess.StudentName,
		Status:            sess.Status,
		TrustScore:        sess.TrustScore,
		TerminationReason: sess.TerminationReason,
		Score:             sess.Score,
		Percentage:        sess.Percentage,
		Alerts:            alerts,
		RecentLogs:        latest,
	}
}
