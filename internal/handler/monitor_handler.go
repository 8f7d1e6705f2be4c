package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/secureeval-backend/internal/config"
	"github.com/stemsi/secureeval-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// snapshotFunc builds the payload of a snapshot or refresh event.
type snapshotFunc func(ctx context.Context) (interface{}, error)

// MonitorHandler streams live session events to proctors over SSE.
type MonitorHandler struct {
	rdb          *redis.Client
	questionSets *service.QuestionSetService
	sessions     *service.SessionService
	monitor      *service.MonitorService
	log          zerolog.Logger

	refreshEvery   time.Duration
	keepAliveEvery time.Duration
}

func NewMonitorHandler(
	rdb *redis.Client,
	questionSets *service.QuestionSetService,
	sessions *service.SessionService,
	monitor *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		questionSets:   questionSets,
		sessions:       sessions,
		monitor:        monitor,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		refreshEvery:   refreshInterval,
		keepAliveEvery: keepAliveInterval,
	}
}

// MonitorQuestionSetSSE godoc
// GET /api/v1/admin/question-sets/:id/monitor
// Sends a snapshot of every session of the set, then forwards session events
// as they are published.
func (h *MonitorHandler) MonitorQuestionSetSSE(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	qs, err := h.questionSets.Get(c.Request.Context(), id)
	if err != nil {
		failWithError(c, err)
		return
	}

	snapshot := func(ctx context.Context) (interface{}, error) {
		views, err := h.monitor.Snapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"question_set": qs.Summary(),
			"sessions":     views,
		}, nil
	}

	h.stream(c, config.CacheKey.MonitorChannel(id.String()), id, snapshot)
}

// MonitorAllSSE godoc
// GET /api/v1/admin/monitor
// Forwards events of every session; snapshots carry the dashboard counters.
func (h *MonitorHandler) MonitorAllSSE(c *gin.Context) {
	snapshot := func(ctx context.Context) (interface{}, error) {
		stats, err := h.sessions.Dashboard(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{"stats": stats}, nil
	}

	h.stream(c, config.CacheKey.GlobalMonitorChannel(), uuid.Nil, snapshot)
}

func (h *MonitorHandler) stream(c *gin.Context, channel string, scope uuid.UUID, snapshot snapshotFunc) {
	reqCtx := c.Request.Context()
	streamLog := h.log.With().Str("channel", channel).Logger()

	initial, err := h.fetch(reqCtx, snapshot)
	if err != nil {
		failWithError(c, err)
		return
	}

	// SSE headers
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("message", gin.H{"type": "snapshot", "data": initial})
	c.Writer.Flush()

	pubsub := h.rdb.Subscribe(reqCtx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(h.keepAliveEvery)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(h.refreshEvery)
	defer refreshTicker.Stop()

	// Refreshes are skipped until something happened since the last one.
	dirty := false

	if scope != uuid.Nil {
		streamLog = streamLog.With().Str("question_set_id", scope.String()).Logger()
	}
	streamLog.Info().Msg("Admin attached to live monitor SSE")

	// Pre-allocate a reusable ping payload (never changes)
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			streamLog.Info().Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward raw JSON directly, no deserialization needed
			writeSSEData(c, []byte(msg.Payload))
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			data, err := h.fetch(reqCtx, snapshot)
			if err != nil {
				streamLog.Warn().Err(err).Msg("Failed to refresh monitor snapshot")
				continue
			}
			c.SSEvent("message", gin.H{"type": "refresh", "data": data})
			c.Writer.Flush()
			dirty = false

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

// fetch runs snapshot under refreshTimeout.
func (h *MonitorHandler) fetch(parent context.Context, snapshot snapshotFunc) (interface{}, error) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()
	return snapshot(ctx)
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
