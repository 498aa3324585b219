package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/maltedev/weft-scraper/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxEvent_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		event   *OutboxEvent
		wantErr bool
	}{
		{
			name:  "complete",
			event: &OutboxEvent{AggregateType: "catalog_run", EventType: events.TypeRunCompleted, Payload: json.RawMessage(`{}`)},
		},
		{
			name:    "missing aggregate type",
			event:   &OutboxEvent{EventType: events.TypeRunCompleted, Payload: json.RawMessage(`{}`)},
			wantErr: true,
		},
		{
			name:    "missing event type",
			event:   &OutboxEvent{AggregateType: "catalog_run", Payload: json.RawMessage(`{}`)},
			wantErr: true,
		},
		{
			name:    "missing payload",
			event:   &OutboxEvent{AggregateType: "catalog_run", EventType: events.TypeRunCompleted},
			wantErr: true,
		},
		{
			name:    "broken payload",
			event:   &OutboxEvent{AggregateType: "catalog_run", EventType: events.TypeRunCompleted, Payload: json.RawMessage(`{"a":`)},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOutboxEvent_RoundTrip(t *testing.T) {
	event := &events.Event{
		ID:            uuid.New(),
		Type:          events.TypeRunCompleted,
		AggregateType: events.AggregateRun,
		AggregateID:   "run-1",
		Payload:       json.RawMessage(`{"count":3}`),
	}

	row := NewOutboxEvent(event, "catalog:test")
	assert.Equal(t, event.ID, row.ID)
	assert.Equal(t, "catalog:test", row.TargetStream)

	row.RetryCount = 2
	back := row.Event()
	assert.Equal(t, event.Type, back.Type)
	assert.Equal(t, "catalog:test", back.Stream)
	assert.Equal(t, 3, back.Attempt)
}

func TestNextRetryTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		retries int
		want    time.Duration
	}{
		{retries: 1, want: 2 * time.Second},
		{retries: 3, want: 8 * time.Second},
		{retries: 8, want: 256 * time.Second},
		{retries: 9, want: 300 * time.Second},
		{retries: 40, want: 300 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, now.Add(tt.want), nextRetryTime(now, tt.retries), "retries=%d", tt.retries)
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "weft", Password: "p@ss word", Database: "weft_catalog"}
	assert.Equal(t, "postgres://weft:p%40ss%20word@db:5433/weft_catalog?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("successful insert with transaction", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: events.AggregateRun,
			AggregateID:   uuid.NewString(),
			EventType:     events.TypeRunCompleted,
			Payload:       json.RawMessage(`{"count":1}`),
		}

		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, events.DefaultStream, event.TargetStream)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rollback on transaction failure", func(t *testing.T) {
		aggregateID := uuid.NewString()
		event := &OutboxEvent{
			AggregateType: events.AggregateRun,
			AggregateID:   aggregateID,
			EventType:     events.TypeRunCompleted,
			Payload:       json.RawMessage(`{}`),
		}

		err := db.Transaction(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		assert.Error(t, err)

		pending, err := repo.GetPending(ctx, 100)
		require.NoError(t, err)
		for _, e := range pending {
			assert.NotEqual(t, aggregateID, e.AggregateID)
		}
	})
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("increment retry count and set backoff", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: events.AggregateRun,
			AggregateID:   uuid.NewString(),
			EventType:     events.TypeRunCompleted,
			Payload:       json.RawMessage(`{}`),
		}
		require.NoError(t, pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		}))

		require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))

		var status string
		var retryCount int
		var errorMsg *string
		err := db.pool.QueryRow(ctx,
			"SELECT status, retry_count, error_message FROM outbox_event WHERE id = $1",
			event.ID).Scan(&status, &retryCount, &errorMsg)
		require.NoError(t, err)

		assert.Equal(t, OutboxStatusFailed, status)
		assert.Equal(t, 1, retryCount)
		require.NotNil(t, errorMsg)
		assert.Contains(t, *errorMsg, "assert.AnError")
	})

	t.Run("move to dead letter after max retries", func(t *testing.T) {
		event := &OutboxEvent{
			AggregateType: events.AggregateRun,
			AggregateID:   uuid.NewString(),
			EventType:     events.TypeRunCompleted,
			Payload:       json.RawMessage(`{}`),
			RetryCount:    MaxRetryCount - 1,
		}
		require.NoError(t, pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		}))

		require.NoError(t, repo.MarkFailed(ctx, event.ID, assert.AnError))

		var status string
		err := db.pool.QueryRow(ctx, "SELECT status FROM outbox_event WHERE id = $1", event.ID).Scan(&status)
		require.NoError(t, err)
		assert.Equal(t, OutboxStatusDeadLetter, status)
	})

	t.Run("mark processed of unknown event", func(t *testing.T) {
		assert.Error(t, repo.MarkProcessed(ctx, uuid.New()))
	})
}

// setupTestDB connects to DATABASE_TEST_URL and skips the test when it is
// not set.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("DATABASE_TEST_URL")
	if dsn == "" {
		t.Skip("Test database not configured")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	db := &DB{pool: pool}
	require.NoError(t, db.EnsureSchema(ctx))
	return db
}
