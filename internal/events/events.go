package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/weft-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	TypeRunCompleted = "CATALOG_RUN_COMPLETED"
	AggregateRun     = "catalog_run"
	DefaultStream    = "catalog:runs"
	source           = "weft-scraper"
)

// RedisClient is the subset of the redis client used for publishing.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type Event struct {
	ID            uuid.UUID
	Type          string
	AggregateType string
	AggregateID   string
	Payload       json.RawMessage
	Stream        string
	CreatedAt     time.Time
	Attempt       int
}

type RunCompletedPayload struct {
	RunID       string             `json:"run_id"`
	BaseURL     string             `json:"base_url,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
	Count       int                `json:"count"`
	Categories  []string           `json:"categories"`
	Summary     *models.RunSummary `json:"summary,omitempty"`
}

func NewRunCompleted(runID uuid.UUID, baseURL string, artifact *models.Artifact, summary *models.RunSummary) (*Event, error) {
	if artifact == nil {
		return nil, fmt.Errorf("artifact is required")
	}

	categories := artifact.Categories()
	if categories == nil {
		categories = []string{}
	}

	payload, err := json.Marshal(RunCompletedPayload{
		RunID:       runID.String(),
		BaseURL:     baseURL,
		GeneratedAt: artifact.GeneratedAt,
		Count:       artifact.Count,
		Categories:  categories,
		Summary:     summary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return &Event{
		ID:            uuid.New(),
		Type:          TypeRunCompleted,
		AggregateType: AggregateRun,
		AggregateID:   runID.String(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

type Publisher struct {
	client RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		client: client,
		stream: stream,
		logger: slog.Default().With("component", "events"),
	}
}

func (p *Publisher) Stream() string {
	return p.stream
}

// Publish appends the event to its stream, or to the publisher's stream when
// the event names none. It returns the stream entry id.
func (p *Publisher) Publish(ctx context.Context, event *Event) (string, error) {
	stream := event.Stream
	if stream == "" {
		stream = p.stream
	}

	var payload interface{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return "", fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	streamData := map[string]interface{}{
		"id":             event.ID.String(),
		"type":           event.Type,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"timestamp":      event.CreatedAt.Format(time.RFC3339),
		"payload":        payload,
		"metadata": map[string]interface{}{
			"source":  source,
			"attempt": event.Attempt,
			"stream":  stream,
		},
	}

	dataJSON, err := json.Marshal(streamData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":           string(dataJSON),
			"type":           event.Type,
			"timestamp":      fmt.Sprintf("%d", event.CreatedAt.UnixNano()),
			"original_id":    event.ID.String(),
			"aggregate_id":   event.AggregateID,
			"aggregate_type": event.AggregateType,
		},
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published",
		"event_id", event.ID,
		"event_type", event.Type,
		"stream", stream,
		"entry_id", id)

	return id, nil
}

func (p *Publisher) PublishRunCompleted(ctx context.Context, runID uuid.UUID, baseURL string, artifact *models.Artifact, summary *models.RunSummary) (string, error) {
	event, err := NewRunCompleted(runID, baseURL, artifact, summary)
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, event)
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a redis client and verifies it answers.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
