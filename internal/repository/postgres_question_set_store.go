package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/secureeval-backend/internal/model"
)

// PostgresQuestionSetStore handles question set data access. Questions are
// stored as one ordered jsonb array per set.
type PostgresQuestionSetStore struct {
	pool *pgxpool.Pool
}

// NewPostgresQuestionSetStore creates a new PostgresQuestionSetStore.
func NewPostgresQuestionSetStore(pool *pgxpool.Pool) *PostgresQuestionSetStore {
	return &PostgresQuestionSetStore{pool: pool}
}

// Create inserts a new question set.
func (r *PostgresQuestionSetStore) Create(ctx context.Context, qs *model.QuestionSet) error {
	questions, err := json.Marshal(qs.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO question_sets (id, title, subject, questions, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		qs.ID, qs.Title, qs.Subject, string(questions), qs.CreatedAt,
	)
	return err
}

// Get retrieves a question set by ID.
func (r *PostgresQuestionSetStore) Get(ctx context.Context, id uuid.UUID) (*model.QuestionSet, error) {
	var (
		qs  model.QuestionSet
		raw []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, subject, questions, created_at FROM question_sets WHERE id = $1`, id,
	).Scan(&qs.ID, &qs.Title, &qs.Subject, &raw, &qs.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &qs.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return &qs, nil
}

// List retrieves all question sets, newest first.
func (r *PostgresQuestionSetStore) List(ctx context.Context) ([]model.QuestionSetSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, subject, questions, created_at FROM question_sets ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]model.QuestionSetSummary, 0)
	for rows.Next() {
		var (
			qs  model.QuestionSet
			raw []byte
		)
		if err := rows.Scan(&qs.ID, &qs.Title, &qs.Subject, &raw, &qs.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &qs.Questions); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		summaries = append(summaries, qs.Summary())
	}
	return summaries, rows.Err()
}
