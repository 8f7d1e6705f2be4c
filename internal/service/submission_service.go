package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/observability"
	"github.com/stemsi/secureeval-backend/internal/repository"
)

// SubmissionService grades a session exactly once.
//
// Concurrent submits in one process share a single flight. Across processes,
// the first caller claims the session in the store (GradingClaimedAt) and
// writes the answers; the others poll until the result is recorded. A claim
// older than ClaimTTL is considered abandoned and may be taken over.
type SubmissionService struct {
	sessions     repository.SessionStore
	questionSets repository.QuestionSetStore
	evaluator    *Evaluator
	reports      ReportScheduler
	events       EventPublisher
	cfg          EngineConfig
	group        singleflight.Group
	log          zerolog.Logger
	now          func() time.Time
}

// NewSubmissionService creates a new SubmissionService. reports and events may be nil.
func NewSubmissionService(
	sessions repository.SessionStore,
	questionSets repository.QuestionSetStore,
	evaluator *Evaluator,
	reports ReportScheduler,
	events EventPublisher,
	cfg EngineConfig,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		sessions:     sessions,
		questionSets: questionSets,
		evaluator:    evaluator,
		reports:      reports,
		events:       events,
		cfg:          cfg.withDefaults(),
		log:          log.With().Str("component", "submission_service").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Submit grades the answers of a session. Completed sessions replay their
// stored result and Terminated sessions return their terminal state, both with
// NoOp set. Once grading has started it runs to completion even if ctx is
// cancelled.
func (s *SubmissionService) Submit(ctx context.Context, id uuid.UUID, raw map[string]any) (*model.SubmissionResult, error) {
	answers := NormalizeAnswers(raw)
	detached := context.WithoutCancel(ctx)

	v, err, _ := s.group.Do(id.String(), func() (any, error) {
		return s.submit(detached, id, answers)
	})
	if err != nil {
		observability.Submissions().WithLabelValues("error").Inc()
		return nil, err
	}
	result := *v.(*model.SubmissionResult)
	return &result, nil
}

func (s *SubmissionService) submit(ctx context.Context, id uuid.UUID, answers map[string]string) (*model.SubmissionResult, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, sessionError("get session", err)
	}
	if sess.Status.IsTerminal() {
		return s.replay(sess), nil
	}

	qs, err := s.questionSets.Get(ctx, sess.QuestionSetID)
	if err != nil {
		return nil, questionSetError("get question set", err)
	}

	claimedAt := s.now()
	var claimed bool
	sess, err = s.sessions.Update(ctx, id, func(cur *model.Session) ([]model.ViolationLogEntry, error) {
		claimed = false
		if cur.Status.IsTerminal() {
			return nil, repository.ErrSkipWrite
		}
		if cur.GradingClaimedAt != nil && claimedAt.Sub(*cur.GradingClaimedAt) < s.cfg.ClaimTTL {
			return nil, repository.ErrSkipWrite
		}
		at := claimedAt
		cur.GradingClaimedAt = &at
		if cur.Answers == nil {
			cur.Answers = answers
		}
		claimed = true
		return nil, nil
	})
	if err != nil {
		return nil, sessionError("claim submission", err)
	}
	if !claimed {
		if sess.Status.IsTerminal() {
			return s.replay(sess), nil
		}
		return s.awaitResult(ctx, id, *sess.GradingClaimedAt)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GradingTimeout)
	ev := s.evaluator.Evaluate(gctx, qs.Questions, sess.Answers)
	cancel()

	finishedAt := s.now()
	var recorded bool
	sess, err = s.sessions.Update(ctx, id, func(cur *model.Session) ([]model.ViolationLogEntry, error) {
		recorded = false
		if cur.Status.IsTerminal() {
			return nil, repository.ErrSkipWrite
		}
		score, pct := ev.Score, ev.Percentage
		finished := finishedAt
		cur.Status = model.SessionStatusCompleted
		cur.Score = &score
		cur.Percentage = &pct
		cur.TotalQuestions = ev.TotalQuestions
		cur.TotalMarks = ev.TotalMarks
		cur.Feedback = ev.Feedback
		cur.FinishedAt = &finished
		cur.GradingClaimedAt = nil
		recorded = true
		return nil, nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to record submission result")
		return nil, sessionError("record submission", err)
	}
	if !recorded {
		// Terminated while grading; the termination stands.
		return s.replay(sess), nil
	}

	observability.Submissions().WithLabelValues("graded").Inc()
	s.log.Info().
		Str("session_id", id.String()).
		Float64("score", ev.Score).
		Float64("percentage", ev.Percentage).
		Int("fallbacks", ev.Fallbacks).
		Msg("Submission graded")

	publishEvent(ctx, s.events, model.EventFromSession(model.EventSessionSubmitted, sess, "", finishedAt), s.log)
	if s.cfg.AutoReport && s.reports != nil {
		if err := s.reports.ScheduleReport(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to schedule integrity report")
		}
	}
	return model.ResultFromSession(sess, false), nil
}

// awaitResult polls the store while another instance holds the grading claim.
func (s *SubmissionService) awaitResult(ctx context.Context, id uuid.UUID, claimedAt time.Time) (*model.SubmissionResult, error) {
	deadline := claimedAt.Add(s.cfg.ClaimTTL)
	ticker := time.NewTicker(s.cfg.SubmitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		sess, err := s.sessions.Get(ctx, id)
		if err != nil {
			return nil, sessionError("poll submission", err)
		}
		if sess.Status.IsTerminal() {
			return s.replay(sess), nil
		}
		if !s.now().Before(deadline) {
			return nil, ErrSubmissionInProgress
		}
	}
}

func (s *SubmissionService) replay(sess *model.Session) *model.SubmissionResult {
	outcome := "replayed"
	if sess.Status == model.SessionStatusTerminated {
		outcome = "terminated"
	}
	observability.Submissions().WithLabelValues(outcome).Inc()
	return model.ResultFromSession(sess, true)
}
