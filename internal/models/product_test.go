package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewArtifact(t *testing.T) {
	products := []Product{
		{Name: "חטיף תירס", Price: "12.90", Category: "חטיפים", Image: "a.jpg"},
		{Name: "פסטה מלאה", Price: "9.90", Category: "פסטה", Image: "b.jpg"},
	}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("IST", 2*3600))

	artifact := NewArtifact(products, at)
	products[0].Name = "mutated"

	assert.Equal(t, 2, artifact.Count)
	assert.Equal(t, "חטיף תירס", artifact.Products[0].Name)
	assert.Equal(t, time.UTC, artifact.GeneratedAt.Location())
	assert.Equal(t, []string{"חטיפים", "פסטה"}, artifact.Categories())
	assert.Empty(t, artifact.Validate())
}

func TestArtifactValidate(t *testing.T) {
	artifact := &Artifact{
		Count: 3,
		Products: []Product{
			{Name: "a", Price: "1", Image: "x.png"},
			{Name: "b", Price: "", Image: "y.png"},
			{Name: "c", Price: "2", Image: "x.png"},
		},
	}

	errs := artifact.Validate()
	assert.Len(t, errs, 2)
	assert.Contains(t, errs, "product without price at position 1")
	assert.Contains(t, errs, "duplicate image x.png")
}
