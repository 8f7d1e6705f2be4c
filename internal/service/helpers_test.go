package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testEngineConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.SubmitPollInterval = 10 * time.Millisecond
	cfg.ReportTimeout = time.Second
	cfg.GradingTimeout = time.Second
	return cfg
}

type testStores struct {
	sessions     *repository.RedisSessionStore
	questionSets *repository.RedisQuestionSetStore
}

func newTestStores(t *testing.T) testStores {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return testStores{
		sessions:     repository.NewRedisSessionStore(client),
		questionSets: repository.NewRedisQuestionSetStore(client),
	}
}

func intPtr(v int) *int { return &v }

// twoQuestionSet is one objective question (correct option 1) and one free-text question.
func twoQuestionSet() *model.QuestionSet {
	return &model.QuestionSet{
		ID:    uuid.New(),
		Title: "General Science",
		Questions: []model.Question{
			{ID: "0", Text: "Which planet is red?", Type: model.QuestionTypeObjective, Options: []string{"Venus", "Mars", "Jupiter"}, CorrectIndex: intPtr(1), MaxMarks: 1},
			{ID: "1", Text: "Explain photosynthesis.", Type: model.QuestionTypeFreeText, MaxMarks: 1},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func seedQuestionSet(t *testing.T, st testStores, qs *model.QuestionSet) *model.QuestionSet {
	t.Helper()
	require.NoError(t, st.questionSets.Create(context.Background(), qs))
	return qs
}

func seedActiveSession(t *testing.T, st testStores, qs *model.QuestionSet) *model.Session {
	t.Helper()
	sess := model.NewSession("student-1", "Ada", "final", qs.ID, time.Now().UTC())
	require.NoError(t, st.sessions.Create(context.Background(), sess))
	return sess
}

type fakeGrader struct {
	mu       sync.Mutex
	calls    atomic.Int32
	items    [][]GradeItem
	outcomes []GradeOutcome
	err      error
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (f *fakeGrader) GradeBatch(ctx context.Context, items []GradeItem) ([]GradeOutcome, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.items = append(f.items, items)
	f.mu.Unlock()

	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.outcomes, nil
}

type fakeSummarizer struct {
	report *model.IntegrityReport
	err    error
	block  bool
	inputs []ReportInput
}

func (f *fakeSummarizer) Summarize(ctx context.Context, in ReportInput) (*model.IntegrityReport, error) {
	f.inputs = append(f.inputs, in)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.report, f.err
}

type fakeClassifier struct {
	faces int
	err   error
	calls int
}

func (f *fakeClassifier) CountFaces(_ context.Context, _ []byte) (int, error) {
	f.calls++
	return f.faces, f.err
}

type fakeExtractor struct {
	result   *model.ExtractionResult
	err      error
	mimeType string
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte, mimeType string) (*model.ExtractionResult, error) {
	f.mimeType = mimeType
	return f.result, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.SessionEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, evt model.SessionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakePublisher) types() []model.SessionEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.SessionEventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeScheduler struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (f *fakeScheduler) ScheduleReport(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

var errCollaborator = errors.New("collaborator exploded")
