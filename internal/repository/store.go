package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/secureeval-backend/internal/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrSkipWrite may be returned by a Mutator to abort an update without error.
	ErrSkipWrite = errors.New("repository: skip write")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("repository: too many concurrent updates")
)

// Mutator edits a session inside an atomic update and returns the log entries
// that must be committed together with it. Returning ErrSkipWrite commits nothing
// and makes Update return the session as it was read.
type Mutator func(s *model.Session) ([]model.ViolationLogEntry, error)

// SessionStore persists sessions and their violation logs.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id uuid.UUID) (*model.Session, error)
	// Update performs an atomic read-modify-write of one session. Log entries
	// returned by the mutator are durable iff the session change is.
	Update(ctx context.Context, id uuid.UUID, mutate Mutator) (*model.Session, error)
	AppendLog(ctx context.Context, entry model.ViolationLogEntry) error
	// ListLogs returns the full log in ascending timestamp order.
	ListLogs(ctx context.Context, id uuid.UUID) ([]model.ViolationLogEntry, error)
	// LatestLogs returns at most n entries, newest first.
	LatestLogs(ctx context.Context, id uuid.UUID, n int) ([]model.ViolationLogEntry, error)
	List(ctx context.Context, filter model.SessionFilter) ([]model.Session, error)
	Stats(ctx context.Context) (model.DashboardStats, error)
	// Delete removes the session together with its log.
	Delete(ctx context.Context, id uuid.UUID) error
}

// QuestionSetStore persists question sets.
type QuestionSetStore interface {
	Create(ctx context.Context, qs *model.QuestionSet) error
	Get(ctx context.Context, id uuid.UUID) (*model.QuestionSet, error)
	List(ctx context.Context) ([]model.QuestionSetSummary, error)
}
