package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/weft-scraper/internal/events"
	"github.com/maltedev/weft-scraper/internal/models"
)

// Run is one stored extraction.
type Run struct {
	ID          uuid.UUID `json:"id"`
	BaseURL     string    `json:"base_url"`
	GeneratedAt time.Time `json:"generated_at"`
	Count       int       `json:"count"`
	Discovered  int       `json:"discovered"`
	Visited     int       `json:"visited"`
	Failed      int       `json:"failed"`
	CreatedAt   time.Time `json:"created_at"`
}

// CatalogRepository stores run artifacts and serves the newest one.
type CatalogRepository struct {
	db     *DB
	outbox *OutboxRepository
	stream string
}

func NewCatalogRepository(db *DB, stream string) *CatalogRepository {
	if stream == "" {
		stream = events.DefaultStream
	}
	return &CatalogRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
		stream: stream,
	}
}

// SaveRun stores the run, its products in artifact order and a
// run-completed outbox event in one transaction.
func (r *CatalogRepository) SaveRun(ctx context.Context, runID uuid.UUID, baseURL string, artifact *models.Artifact, summary *models.RunSummary) error {
	if artifact == nil {
		return fmt.Errorf("artifact is required")
	}
	if summary == nil {
		summary = &models.RunSummary{Final: artifact.Count}
	}

	event, err := events.NewRunCompleted(runID, baseURL, artifact, summary)
	if err != nil {
		return fmt.Errorf("failed to build run event: %w", err)
	}

	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO catalog_run (id, base_url, generated_at, product_count, discovered, visited, failed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, baseURL, artifact.GeneratedAt, artifact.Count,
			summary.Discovered, summary.Visited, summary.Failed)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		if len(artifact.Products) > 0 {
			_, err = tx.CopyFrom(ctx,
				pgx.Identifier{"catalog_product"},
				[]string{"run_id", "position", "name", "price", "category", "url", "image"},
				pgx.CopyFromSlice(len(artifact.Products), func(i int) ([]any, error) {
					p := artifact.Products[i]
					return []any{runID, i, p.Name, p.Price, p.Category, p.URL, p.Image}, nil
				}),
			)
			if err != nil {
				return fmt.Errorf("failed to insert products: %w", err)
			}
		}

		return r.outbox.InsertWithTx(ctx, tx, NewOutboxEvent(event, r.stream))
	})
}

// Latest returns the artifact of the newest run.
func (r *CatalogRepository) Latest(ctx context.Context) (*models.Artifact, error) {
	var runID uuid.UUID
	err := r.db.pool.QueryRow(ctx,
		"SELECT id FROM catalog_run ORDER BY generated_at DESC, created_at DESC LIMIT 1").Scan(&runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNoArtifact
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return r.Artifact(ctx, runID)
}

// Artifact rebuilds the artifact of a stored run.
func (r *CatalogRepository) Artifact(ctx context.Context, runID uuid.UUID) (*models.Artifact, error) {
	var generatedAt time.Time
	err := r.db.pool.QueryRow(ctx,
		"SELECT generated_at FROM catalog_run WHERE id = $1", runID).Scan(&generatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: run %s", models.ErrNoArtifact, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT name, price, category, url, image
		FROM catalog_product
		WHERE run_id = $1
		ORDER BY position ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}

	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Product, error) {
		var p models.Product
		err := row.Scan(&p.Name, &p.Price, &p.Category, &p.URL, &p.Image)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}

	return models.NewArtifact(products, generatedAt), nil
}

// Runs lists stored runs, newest first.
func (r *CatalogRepository) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT id, base_url, generated_at, product_count, discovered, visited, failed, created_at
		FROM catalog_run
		ORDER BY generated_at DESC, created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var run Run
		err := row.Scan(&run.ID, &run.BaseURL, &run.GeneratedAt, &run.Count,
			&run.Discovered, &run.Visited, &run.Failed, &run.CreatedAt)
		return run, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs: %w", err)
	}

	return runs, nil
}
