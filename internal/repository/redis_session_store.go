package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/secureeval-backend/internal/config"
	"github.com/stemsi/secureeval-backend/internal/model"
)

// maxTxRetries bounds optimistic retries of a WATCH/MULTI update.
const maxTxRetries = 50

// RedisSessionStore keeps each session as a JSON document and its violation
// log in a sorted set scored by timestamp. Updates use WATCH/MULTI.
type RedisSessionStore struct {
	rdb *redis.Client
}

// NewRedisSessionStore creates a new RedisSessionStore.
func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

// Create stores a new session and indexes it.
func (r *RedisSessionStore) Create(ctx context.Context, s *model.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	id := s.ID.String()
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, config.CacheKey.SessionKey(id), payload, 0)
		pipe.SAdd(ctx, config.CacheKey.SessionIndexKey(), id)
		return nil
	})
	return err
}

// Get retrieves a session by ID.
func (r *RedisSessionStore) Get(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	raw, err := r.rdb.Get(ctx, config.CacheKey.SessionKey(id.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSession(raw)
}

// Update watches the session key, applies mutate and commits the session and
// its log entries in one MULTI. Lost races are retried.
func (r *RedisSessionStore) Update(ctx context.Context, id uuid.UUID, mutate Mutator) (*model.Session, error) {
	key := config.CacheKey.SessionKey(id.String())
	logKey := config.CacheKey.SessionLogKey(id.String())

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var result *model.Session

		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			current, err := decodeSession(raw)
			if err != nil {
				return err
			}

			next := current.Clone()
			entries, err := mutate(next)
			if errors.Is(err, ErrSkipWrite) {
				result = current
				return nil
			}
			if err != nil {
				return err
			}
			next.UpdatedAt = time.Now().UTC()

			payload, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode session: %w", err)
			}
			members := make([]redis.Z, 0, len(entries))
			for _, e := range entries {
				m, err := logMember(e)
				if err != nil {
					return err
				}
				members = append(members, m)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, 0)
				if len(members) > 0 {
					pipe.ZAdd(ctx, logKey, members...)
				}
				return nil
			})
			if err != nil {
				return err
			}
			result = next
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrConflict
}

// AppendLog appends one entry to an existing session's log. The session key
// is watched so a concurrent Delete cannot leave an orphaned log behind.
func (r *RedisSessionStore) AppendLog(ctx context.Context, e model.ViolationLogEntry) error {
	key := config.CacheKey.SessionKey(e.SessionID.String())
	logKey := config.CacheKey.SessionLogKey(e.SessionID.String())
	m, err := logMember(e)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZAdd(ctx, logKey, m)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// ListLogs returns every log entry of a session, oldest first.
func (r *RedisSessionStore) ListLogs(ctx context.Context, id uuid.UUID) ([]model.ViolationLogEntry, error) {
	raw, err := r.rdb.ZRange(ctx, config.CacheKey.SessionLogKey(id.String()), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeLogs(raw)
}

// LatestLogs returns the newest n log entries of a session, newest first.
func (r *RedisSessionStore) LatestLogs(ctx context.Context, id uuid.UUID, n int) ([]model.ViolationLogEntry, error) {
	if n <= 0 {
		return []model.ViolationLogEntry{}, nil
	}
	raw, err := r.rdb.ZRevRange(ctx, config.CacheKey.SessionLogKey(id.String()), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	return decodeLogs(raw)
}

// List retrieves sessions matching the filter, newest first.
func (r *RedisSessionStore) List(ctx context.Context, f model.SessionFilter) ([]model.Session, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]model.Session, 0, len(all))
	for _, s := range all {
		if f.Matches(s) {
			sessions = append(sessions, *s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Stats aggregates session counts for the dashboard.
func (r *RedisSessionStore) Stats(ctx context.Context) (model.DashboardStats, error) {
	var st model.DashboardStats
	all, err := r.loadAll(ctx)
	if err != nil {
		return st, err
	}

	var trustSum int
	for _, s := range all {
		st.TotalSessions++
		trustSum += s.TrustScore
		switch s.Status {
		case model.SessionStatusActive:
			st.ActiveSessions++
		case model.SessionStatusFlagged:
			st.FlaggedSessions++
		case model.SessionStatusTerminated:
			st.TerminatedSessions++
		case model.SessionStatusCompleted:
			st.CompletedSessions++
		}
	}
	if st.TotalSessions > 0 {
		st.AverageTrustScore = float64(trustSum) / float64(st.TotalSessions)
	}

	sets, err := r.rdb.ZCard(ctx, config.CacheKey.QuestionSetIndexKey()).Result()
	if err != nil {
		return st, err
	}
	st.TotalQuestionSets = int(sets)
	return st, nil
}

// Delete removes a session, its log and its index entry.
func (r *RedisSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	sid := id.String()
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, config.CacheKey.SessionKey(sid))
		pipe.Del(ctx, config.CacheKey.SessionLogKey(sid))
		pipe.SRem(ctx, config.CacheKey.SessionIndexKey(), sid)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisSessionStore) loadAll(ctx context.Context) ([]*model.Session, error) {
	ids, err := r.rdb.SMembers(ctx, config.CacheKey.SessionIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = config.CacheKey.SessionKey(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]*model.Session, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // deleted between SMEMBERS and MGET
		}
		s, err := decodeSession([]byte(str))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func decodeSession(raw []byte) (*model.Session, error) {
	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// logMember encodes an entry as a sorted-set member. The entry id keeps
// members with identical messages and timestamps distinct.
func logMember(e model.ViolationLogEntry) (redis.Z, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return redis.Z{}, fmt.Errorf("encode log entry: %w", err)
	}
	return redis.Z{
		Score:  float64(e.Timestamp.UnixMicro()),
		Member: string(payload),
	}, nil
}

func decodeLogs(raw []string) ([]model.ViolationLogEntry, error) {
	entries := make([]model.ViolationLogEntry, 0, len(raw))
	for _, m := range raw {
		var e model.ViolationLogEntry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("decode log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
