package service

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/repository"
)

// monitorFanOut bounds concurrent log reads while building a snapshot.
const monitorFanOut = 8

// MonitorService builds live monitoring snapshots of the sessions of one question set.
type MonitorService struct {
	sessions repository.SessionStore
	cfg      EngineConfig
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(sessions repository.SessionStore, cfg EngineConfig) *MonitorService {
	return &MonitorService{sessions: sessions, cfg: cfg.withDefaults()}
}

// Snapshot returns a status view for every session of the question set.
// Latest log entries are fetched concurrently; a failed log read leaves that
// session's alerts empty instead of failing the snapshot.
func (s *MonitorService) Snapshot(ctx context.Context, questionSetID uuid.UUID) ([]model.StatusView, error) {
	sessions, err := s.sessions.List(ctx, model.SessionFilter{QuestionSetID: &questionSetID})
	if err != nil {
		return nil, sessionError("list sessions", err)
	}

	views := make([]model.StatusView, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(monitorFanOut)
	for i := range sessions {
		g.Go(func() error {
			latest, err := s.sessions.LatestLogs(gctx, sessions[i].ID, s.cfg.StatusLogLimit)
			if err != nil {
				latest = nil
			}
			views[i] = *statusView(&sessions[i], latest)
			return nil
		})
	}
	_ = g.Wait()

	return views, nil
}
