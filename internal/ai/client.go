package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "secureeval",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of AI completion requests",
	}, []string{"operation", "model"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "secureeval",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed or unparseable AI completion requests",
	}, []string{"operation", "model"})
)

// ErrInvalidResponse is returned when the model answers with something that
// does not match the expected JSON document.
var ErrInvalidResponse = errors.New("invalid ai response")

// Config defines configuration options for the OpenAI client.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// Client sends JSON-mode chat completions and validates the answers against a
// JSON schema before handing them to callers.
type Client struct {
	api    *openai.Client
	cfg    Config
	tracer trace.Tracer
	log    zerolog.Logger
}

// NewClient builds a new client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:    openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/stemsi/secureeval-backend/internal/ai"),
		log:    cfg.Logger.With().Str("component", "openai").Logger(),
	}, nil
}

// completeJSON runs one completion and returns the validated JSON content.
func (c *Client) completeJSON(parent context.Context, operation, system, user string, schema *jsonschema.Schema) ([]byte, error) {
	ctx, span := c.tracer.Start(parent, "openai."+operation, trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	requestDuration.WithLabelValues(operation, c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, c.fail(span, operation, fmt.Errorf("openai %s: %w", operation, err))
	}
	if len(resp.Choices) == 0 {
		return nil, c.fail(span, operation, fmt.Errorf("%w: no choices returned", ErrInvalidResponse))
	}

	content := []byte(stripCodeFence(resp.Choices[0].Message.Content))
	var doc any
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, c.fail(span, operation, fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}
	if err := schema.Validate(doc); err != nil {
		return nil, c.fail(span, operation, fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	return content, nil
}

func (c *Client) fail(span trace.Span, operation string, err error) error {
	requestFailures.WithLabelValues(operation, c.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.log.Warn().Err(err).Str("operation", operation).Msg("AI request failed")
	return err
}

// stripCodeFence removes a markdown ```json fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
