package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/weft-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArtifact() *models.Artifact {
	return models.NewArtifact([]models.Product{
		{Name: "חטיף תירס", Price: "12.90", Category: "חטיפים", URL: "/corn-i1?a=1&b=2", Image: "/productsimages/corn.jpg"},
		{Name: "קמח כוסמין", Price: "14", Category: "קמחים", URL: "/spelt-i2", Image: "/productsimages/spelt.jpg"},
	}, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
}

func TestArtifactWriterWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	writer := NewArtifactWriter(WriterOptions{Dir: dir, File: "products.json"})

	paths, err := writer.Write(testArtifact())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "products.json")}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, `"generatedAt": "2024-03-01T10:00:00Z"`)
	assert.Contains(t, content, `"count": 2`)
	assert.Contains(t, content, `"name": "חטיף תירס"`)
	assert.Contains(t, content, `"url": "/corn-i1?a=1&b=2"`)

	_, err = os.Stat(paths[0] + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := LoadArtifact(paths[0])
	require.NoError(t, err)
	assert.Equal(t, testArtifact(), loaded)
}

func TestArtifactWriterWriteScript(t *testing.T) {
	dir := t.TempDir()
	writer := NewArtifactWriter(WriterOptions{Dir: dir, File: "products.json", JSFile: "products-data.js", JSVar: "NIZAT_PRODUCTS"})

	paths, err := writer.Write(testArtifact())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)

	script := string(data)
	assert.True(t, strings.HasPrefix(script, "window.NIZAT_PRODUCTS = {"))
	assert.True(t, strings.HasSuffix(script, "};\n"))
	assert.Contains(t, script, `"count": 2`)
}

func TestArtifactWriterEmptyRun(t *testing.T) {
	dir := t.TempDir()
	writer := NewArtifactWriter(WriterOptions{Dir: dir})

	paths, err := writer.Write(models.NewArtifact(nil, time.Now()))
	require.NoError(t, err)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"count": 0`)
	assert.Contains(t, string(data), `"products": []`)
}

func TestArtifactWriterFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	writer := NewArtifactWriter(WriterOptions{Dir: filepath.Join(blocker, "data")})

	_, err := writer.Write(testArtifact())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)

	_, err = writer.Write(nil)
	assert.ErrorIs(t, err, ErrWrite)
}

func TestLoadArtifactMissing(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, models.ErrNoArtifact)
}

func TestLoadArtifactInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadArtifact(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNoArtifact)
}

func TestFileSourceReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.json")
	source := NewFileSource(path)
	ctx := context.Background()

	_, err := source.Latest(ctx)
	assert.ErrorIs(t, err, models.ErrNoArtifact)

	writer := NewArtifactWriter(WriterOptions{Dir: dir})
	_, err = writer.Write(testArtifact())
	require.NoError(t, err)

	first, err := source.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Count)

	again, err := source.Latest(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	smaller := models.NewArtifact(testArtifact().Products[:1], time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	_, err = writer.Write(smaller)
	require.NoError(t, err)

	reloaded, err := source.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Count)
}
