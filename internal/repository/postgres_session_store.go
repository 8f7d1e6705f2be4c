package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/secureeval-backend/internal/model"
)

const sessionColumns = `id, student_id, student_name, exam_type, question_set_id, status, trust_score,
	termination_reason, answers, score, percentage, total_questions, total_marks, feedback, report,
	grading_claimed_at, created_at, updated_at, finished_at`

// PostgresSessionStore keeps sessions in the sessions table and the violation
// log in session_logs. Updates run in a transaction holding the row lock.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore creates a new PostgresSessionStore.
func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Create inserts a new session.
func (r *PostgresSessionStore) Create(ctx context.Context, s *model.Session) error {
	args, err := sessionArgs(s)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13, $14::jsonb, $15::jsonb, $16, $17, $18, $19)`,
		args...,
	)
	return err
}

// Get retrieves a session by ID.
func (r *PostgresSessionStore) Get(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Update locks the session row, applies mutate and writes the session plus
// any returned log entries in the same transaction.
func (r *PostgresSessionStore) Update(ctx context.Context, id uuid.UUID, mutate Mutator) (*model.Session, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	current, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	entries, err := mutate(next)
	if errors.Is(err, ErrSkipWrite) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	args, err := sessionArgs(next)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE sessions SET
			student_id = $2, student_name = $3, exam_type = $4, question_set_id = $5, status = $6,
			trust_score = $7, termination_reason = $8, answers = $9::jsonb, score = $10, percentage = $11,
			total_questions = $12, total_marks = $13, feedback = $14::jsonb, report = $15::jsonb,
			grading_claimed_at = $16, created_at = $17, updated_at = $18, finished_at = $19
		 WHERE id = $1`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_logs (id, session_id, message, recorded_at) VALUES ($1, $2, $3, $4)`,
			e.ID, id, e.Message, e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("insert log: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// AppendLog appends one entry to an existing session's log.
func (r *PostgresSessionStore) AppendLog(ctx context.Context, e model.ViolationLogEntry) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO session_logs (id, session_id, message, recorded_at)
		 SELECT $1, $2, $3, $4 WHERE EXISTS (SELECT 1 FROM sessions WHERE id = $2)`,
		e.ID, e.SessionID, e.Message, e.Timestamp,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLogs returns every log entry of a session, oldest first.
func (r *PostgresSessionStore) ListLogs(ctx context.Context, id uuid.UUID) ([]model.ViolationLogEntry, error) {
	return r.queryLogs(ctx,
		`SELECT id, session_id, message, recorded_at FROM session_logs
		 WHERE session_id = $1 ORDER BY recorded_at ASC, seq ASC`, id)
}

// LatestLogs returns the newest n log entries of a session, newest first.
func (r *PostgresSessionStore) LatestLogs(ctx context.Context, id uuid.UUID, n int) ([]model.ViolationLogEntry, error) {
	if n <= 0 {
		return []model.ViolationLogEntry{}, nil
	}
	return r.queryLogs(ctx,
		`SELECT id, session_id, message, recorded_at FROM session_logs
		 WHERE session_id = $1 ORDER BY recorded_at DESC, seq DESC LIMIT $2`, id, n)
}

func (r *PostgresSessionStore) queryLogs(ctx context.Context, query string, args ...any) ([]model.ViolationLogEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.ViolationLogEntry, 0)
	for rows.Next() {
		var e model.ViolationLogEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// List retrieves sessions matching the filter, newest first.
func (r *PostgresSessionStore) List(ctx context.Context, f model.SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1 = 1`
	args := []any{}

	if f.StudentID != "" {
		args = append(args, f.StudentID)
		query += fmt.Sprintf(" AND student_id = $%d", len(args))
	}
	if f.QuestionSetID != nil {
		args = append(args, *f.QuestionSetID)
		query += fmt.Sprintf(" AND question_set_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Stats aggregates session counts for the dashboard.
func (r *PostgresSessionStore) Stats(ctx context.Context) (model.DashboardStats, error) {
	var st model.DashboardStats
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'ACTIVE'),
			COUNT(*) FILTER (WHERE status = 'FLAGGED'),
			COUNT(*) FILTER (WHERE status = 'TERMINATED'),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COALESCE(AVG(trust_score), 0)::float8,
			(SELECT COUNT(*) FROM question_sets)
		 FROM sessions`,
	).Scan(&st.TotalSessions, &st.ActiveSessions, &st.FlaggedSessions, &st.TerminatedSessions,
		&st.CompletedSessions, &st.AverageTrustScore, &st.TotalQuestionSets)
	return st, err
}

// Delete removes a session; its log goes with it through ON DELETE CASCADE.
func (r *PostgresSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func sessionArgs(s *model.Session) ([]any, error) {
	answers, err := jsonArg(s.Answers, s.Answers == nil)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	feedback, err := jsonArg(s.Feedback, s.Feedback == nil)
	if err != nil {
		return nil, fmt.Errorf("encode feedback: %w", err)
	}
	report, err := jsonArg(s.Report, s.Report == nil)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return []any{
		s.ID, s.StudentID, s.StudentName, s.ExamType, s.QuestionSetID, s.Status, s.TrustScore,
		s.TerminationReason, answers, s.Score, s.Percentage, s.TotalQuestions, s.TotalMarks,
		feedback, report, s.GradingClaimedAt, s.CreatedAt, s.UpdatedAt, s.FinishedAt,
	}, nil
}

// jsonArg encodes v for a jsonb column, using SQL NULL when isNil.
func jsonArg(v any, isNil bool) (*string, error) {
	if isNil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		s                         model.Session
		answers, feedback, report []byte
	)
	err := row.Scan(
		&s.ID, &s.StudentID, &s.StudentName, &s.ExamType, &s.QuestionSetID, &s.Status, &s.TrustScore,
		&s.TerminationReason, &answers, &s.Score, &s.Percentage, &s.TotalQuestions, &s.TotalMarks,
		&feedback, &report, &s.GradingClaimedAt, &s.CreatedAt, &s.UpdatedAt, &s.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &s.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	if len(feedback) > 0 {
		if err := json.Unmarshal(feedback, &s.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback: %w", err)
		}
	}
	if len(report) > 0 {
		if err := json.Unmarshal(report, &s.Report); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
	}
	return &s, nil
}
