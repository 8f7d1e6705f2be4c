package service

import (
	"context"
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

const maxSuspiciousMoments = 20

// ReportService produces advisory integrity reports. A report never feeds back
// into a session's status or score.
type ReportService struct {
	sessions   repository.SessionStore
	summarizer Summarizer
	events     EventPublisher
	cfg        EngineConfig
	sanitizer  *bluemonday.Policy
	log        zerolog.Logger
	now        func() time.Time
}

// NewReportService creates a new ReportService. A nil summarizer always
// produces degraded reports.
func NewReportService(sessions repository.SessionStore, summarizer Summarizer, events EventPublisher, cfg EngineConfig, log zerolog.Logger) *ReportService {
	return &ReportService{
		sessions:   sessions,
		summarizer: summarizer,
		events:     events,
		cfg:        cfg.withDefaults(),
		sanitizer:  bluemonday.StrictPolicy(),
		log:        log.With().Str("component", "report_service").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Generate summarises the session's violation log and score and stores the
// result on the session. Summarizer failures yield a degraded report; only
// storage failures are returned.
func (r *ReportService) Generate(ctx context.Context, id uuid.UUID) (*model.IntegrityReport, error) {
	var (
		sess *model.Session
		logs []model.ViolationLogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sess, err = r.sessions.Get(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		logs, err = r.sessions.ListLogs(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, sessionError("load report input", err)
	}

	report := r.summarize(ctx, ReportInput{
		SessionID:   sess.ID,
		StudentName: sess.StudentName,
		ExamType:    sess.ExamType,
		Status:      sess.Status,
		TrustScore:  sess.TrustScore,
		Score:       sess.Score,
		Percentage:  sess.Percentage,
		Logs:        logs,
	})

	stored, err := r.sessions.Update(ctx, id, func(cur *model.Session) ([]model.ViolationLogEntry, error) {
		cur.Report = report
		return nil, nil
	})
	if err != nil {
		return nil, sessionError("store report", err)
	}

	publishEvent(ctx, r.events, model.EventFromSession(model.EventSessionReport, stored, report.SummaryText, report.GeneratedAt), r.log)
	return report, nil
}

// Get returns the stored report of a session.
func (r *ReportService) Get(ctx context.Context, id uuid.UUID) (*model.IntegrityReport, error) {
	sess, err := r.sessions.Get(ctx, id)
	if err != nil {
		return nil, sessionError("get session", err)
	}
	if sess.Report == nil {
		return nil, ErrReportNotGenerated
	}
	return sess.Report, nil
}

func (r *ReportService) summarize(ctx context.Context, in ReportInput) *model.IntegrityReport {
	if r.summarizer == nil {
		observability.Reports().WithLabelValues("degraded").Inc()
		return model.DegradedReport(r.now())
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ReportTimeout)
	defer cancel()

	report, err := r.summarizer.Summarize(sctx, in)
	if err != nil || report == nil {
		r.log.Warn().Err(err).Str("session_id", in.SessionID.String()).Msg("Report generation failed, storing degraded report")
		observability.Reports().WithLabelValues("degraded").Inc()
		return model.DegradedReport(r.now())
	}

	observability.Reports().WithLabelValues("ok").Inc()
	return r.clean(report)
}

// clean bounds and sanitises collaborator output before it is stored.
func (r *ReportService) clean(in *model.IntegrityReport) *model.IntegrityReport {
	out := &model.IntegrityReport{
		Assessment:        in.Assessment,
		SummaryText:       strings.TrimSpace(r.sanitizer.Sanitize(in.SummaryText)),
		SuspiciousMoments: make([]model.SuspiciousMoment, 0, len(in.SuspiciousMoments)),
		GeneratedAt:       r.now(),
	}
	if in.TrustScoreEstimate != nil {
		est := *in.TrustScoreEstimate
		if est < 0 {
			est = 0
		}
		if est > model.InitialTrustScore {
			est = model.InitialTrustScore
		}
		out.TrustScoreEstimate = &est
	}
	switch out.Assessment {
	case model.AssessmentSafe, model.AssessmentSuspicious, model.AssessmentHighRisk:
	default:
		out.Assessment = model.AssessmentUnknown
	}
	if out.SummaryText == "" {
		out.SummaryText = model.DegradedReportSummary
	}
	for i, m := range in.SuspiciousMoments {
		if i == maxSuspiciousMoments {
			break
		}
		out.SuspiciousMoments = append(out.SuspiciousMoments, model.SuspiciousMoment{
			Timestamp:   strings.TrimSpace(r.sanitizer.Sanitize(m.Timestamp)),
			Description: strings.TrimSpace(r.sanitizer.Sanitize(m.Description)),
		})
	}
	return out
}
