package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/secureeval-backend/internal/config"
	"github.com/stemsi/secureeval-backend/internal/model"
)

// RedisQuestionSetStore keeps question sets as JSON documents indexed by a
// sorted set ordered on creation time.
type RedisQuestionSetStore struct {
	rdb *redis.Client
}

// NewRedisQuestionSetStore creates a new RedisQuestionSetStore.
func NewRedisQuestionSetStore(rdb *redis.Client) *RedisQuestionSetStore {
	return &RedisQuestionSetStore{rdb: rdb}
}

// Create stores a new question set.
func (r *RedisQuestionSetStore) Create(ctx context.Context, qs *model.QuestionSet) error {
	payload, err := json.Marshal(qs)
	if err != nil {
		return fmt.Errorf("encode question set: %w", err)
	}
	id := qs.ID.String()
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, config.CacheKey.QuestionSetKey(id), payload, 0)
		pipe.ZAdd(ctx, config.CacheKey.QuestionSetIndexKey(), redis.Z{
			Score:  float64(qs.CreatedAt.UnixMicro()),
			Member: id,
		})
		return nil
	})
	return err
}

// Get retrieves a question set by ID.
func (r *RedisQuestionSetStore) Get(ctx context.Context, id uuid.UUID) (*model.QuestionSet, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.QuestionSetKey(id.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var qs model.QuestionSet
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, fmt.Errorf("decode question set: %w", err)
	}
	return &qs, nil
}

// List retrieves all question sets, newest first.
func (r *RedisQuestionSetStore) List(ctx context.Context) ([]model.QuestionSetSummary, error) {
	ids, err := r.rdb.ZRevRange(ctx, config.CacheKey.QuestionSetIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	summaries := make([]model.QuestionSetSummary, 0, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = config.CacheKey.QuestionSetKey(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var qs model.QuestionSet
		if err := json.Unmarshal([]byte(str), &qs); err != nil {
			return nil, fmt.Errorf("decode question set: %w", err)
		}
		summaries = append(summaries, qs.Summary())
	}
	return summaries, nil
}
