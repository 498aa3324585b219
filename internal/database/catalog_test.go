package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/weft-scraper/internal/events"
	"github.com/maltedev/weft-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRepository_SaveRun(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewCatalogRepository(db, "")

	generatedAt := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	artifact := models.NewArtifact([]models.Product{
		{Name: "חטיף תירס", Price: "12.90", Category: "חטיפים", URL: "/corn-i1", Image: "/productsimages/corn.jpg"},
		{Name: "קמח כוסמין", Price: "14", Category: "קמחים", URL: "/spelt-i2", Image: "/productsimages/spelt.jpg"},
	}, generatedAt)
	summary := &models.RunSummary{Discovered: 10, Categories: 2, Visited: 2, Final: 2}

	runID := uuid.New()
	require.NoError(t, repo.SaveRun(ctx, runID, "https://www.nizat.com", artifact, summary))

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, artifact.Products, latest.Products)
	assert.Equal(t, 2, latest.Count)
	assert.True(t, generatedAt.Equal(latest.GeneratedAt))

	runs, err := repo.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, 10, runs[0].Discovered)

	pending, err := NewOutboxRepository(db).GetPending(ctx, 1000)
	require.NoError(t, err)

	found := false
	for _, e := range pending {
		if e.AggregateID == runID.String() {
			found = true
			assert.Equal(t, events.TypeRunCompleted, e.EventType)
		}
	}
	assert.True(t, found, "run event should be queued in the outbox")
}

func TestCatalogRepository_SaveRunRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewCatalogRepository(db, "")
	artifact := models.NewArtifact(nil, time.Now())
	runID := uuid.New()

	require.NoError(t, repo.SaveRun(ctx, runID, "", artifact, nil))
	assert.Error(t, repo.SaveRun(ctx, runID, "", artifact, nil))
}

func TestCatalogRepository_ArtifactUnknownRun(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	_, err := NewCatalogRepository(db, "").Artifact(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNoArtifact)
}
