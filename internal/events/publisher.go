package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/secureeval-backend/internal/config"
	"github.com/stemsi/secureeval-backend/internal/model"
	"github.com/stemsi/secureeval-backend/internal/service"
)

// RedisPublisher publishes session events on the per-question-set monitor
// channel and on the global monitor channel.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher creates a new RedisPublisher.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, event model.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, config.CacheKey.MonitorChannel(event.QuestionSetID.String()), payload)
	pipe.Publish(ctx, config.CacheKey.GlobalMonitorChannel(), payload)
	_, err = pipe.Exec(ctx)
	return err
}

// NATSPublisher publishes session events to "<prefix>.<question set id>".
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a new NATSPublisher.
func NewNATSPublisher(nc *nats.Conn, subjectPrefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: strings.TrimSuffix(subjectPrefix, ".")}
}

// Subject returns the subject events of questionSetID are published on.
func (p *NATSPublisher) Subject(questionSetID string) string {
	return p.prefix + "." + questionSetID
}

func (p *NATSPublisher) Publish(_ context.Context, event model.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.Subject(event.QuestionSetID.String()), payload)
}

// Multi fans an event out to every publisher. All publishers are attempted;
// their errors are joined.
type Multi []service.EventPublisher

func (m Multi) Publish(ctx context.Context, event model.SessionEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
