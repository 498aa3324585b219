package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/weft-scraper/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event *events.Event) (string, error) {
	args := m.Called(ctx, event)
	return args.String(0), args.Error(1)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func runEvent(runID string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: events.AggregateRun,
		AggregateID:   runID,
		EventType:     events.TypeRunCompleted,
		Payload:       json.RawMessage(`{"run_id":"` + runID + `","count":2}`),
		TargetStream:  events.DefaultStream,
		CreatedAt:     time.Now(),
	}
}

func TestRelay_ProcessPending(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("publishes and marks events", func(t *testing.T) {
		publisher := new(MockPublisher)
		outbox := new(MockOutboxRepository)
		relay := &Relay{publisher: publisher, outbox: outbox, logger: logger, batchSize: 10}

		pending := []*OutboxEvent{runEvent("run-1"), runEvent("run-2")}
		outbox.On("GetPending", ctx, 10).Return(pending, nil)

		for _, event := range pending {
			event := event
			publisher.On("Publish", ctx, mock.MatchedBy(func(e *events.Event) bool {
				return e.ID == event.ID &&
					e.Type == events.TypeRunCompleted &&
					e.AggregateID == event.AggregateID &&
					e.Stream == events.DefaultStream &&
					e.Attempt == 1
			})).Return("1-0", nil)
			outbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		published, err := relay.ProcessPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, published)

		publisher.AssertExpectations(t)
		outbox.AssertExpectations(t)
	})

	t.Run("marks failed publish for retry", func(t *testing.T) {
		publisher := new(MockPublisher)
		outbox := new(MockOutboxRepository)
		relay := &Relay{publisher: publisher, outbox: outbox, logger: logger, batchSize: 10}

		event := runEvent("run-1")
		outbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)

		publishErr := errors.New("failed to publish to redis: redis connection failed")
		publisher.On("Publish", ctx, mock.Anything).Return("", publishErr)
		outbox.On("MarkFailed", ctx, event.ID, publishErr).Return(nil)

		published, err := relay.ProcessPending(ctx)
		assert.NoError(t, err)
		assert.Zero(t, published)

		publisher.AssertExpectations(t)
		outbox.AssertExpectations(t)
		outbox.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	})

	t.Run("empty batch", func(t *testing.T) {
		publisher := new(MockPublisher)
		outbox := new(MockOutboxRepository)
		relay := &Relay{publisher: publisher, outbox: outbox, logger: logger, batchSize: 10}

		outbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		published, err := relay.ProcessPending(ctx)
		require.NoError(t, err)
		assert.Zero(t, published)

		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("continues after individual failure", func(t *testing.T) {
		publisher := new(MockPublisher)
		outbox := new(MockOutboxRepository)
		relay := &Relay{publisher: publisher, outbox: outbox, logger: logger, batchSize: 10}

		pending := []*OutboxEvent{runEvent("run-1"), runEvent("run-2")}
		outbox.On("GetPending", ctx, 10).Return(pending, nil)

		publisher.On("Publish", ctx, mock.MatchedBy(func(e *events.Event) bool {
			return e.AggregateID == "run-1"
		})).Return("", errors.New("redis error"))
		outbox.On("MarkFailed", ctx, pending[0].ID, mock.Anything).Return(nil)

		publisher.On("Publish", ctx, mock.MatchedBy(func(e *events.Event) bool {
			return e.AggregateID == "run-2"
		})).Return("2-0", nil)
		outbox.On("MarkProcessed", ctx, pending[1].ID).Return(nil)

		published, err := relay.ProcessPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, published)

		publisher.AssertExpectations(t)
		outbox.AssertExpectations(t)
	})

	t.Run("outbox read failure", func(t *testing.T) {
		outbox := new(MockOutboxRepository)
		relay := &Relay{publisher: new(MockPublisher), outbox: outbox, logger: logger, batchSize: 10}

		outbox.On("GetPending", ctx, 10).Return(nil, errors.New("connection refused"))

		_, err := relay.ProcessPending(ctx)
		assert.Error(t, err)
	})
}

func TestRelay_Start(t *testing.T) {
	t.Run("stop on context cancellation", func(t *testing.T) {
		outbox := new(MockOutboxRepository)
		relay := &Relay{
			publisher: new(MockPublisher),
			outbox:    outbox,
			logger:    slog.Default(),
			interval:  50 * time.Millisecond,
			batchSize: 10,
		}

		outbox.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil).Maybe()

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error)
		go func() {
			done <- relay.Start(ctx)
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("relay did not stop on context cancellation")
		}
	})
}
