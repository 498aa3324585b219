package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maltedev/weft-scraper/internal/models"
)

var ErrWrite = errors.New("failed to write artifact")

type WriterOptions struct {
	Dir    string
	File   string
	JSFile string
	JSVar  string
}

// ArtifactWriter persists run artifacts as pretty JSON and, optionally, as a
// script assigning the same document to a window variable.
type ArtifactWriter struct {
	opts WriterOptions
}

func NewArtifactWriter(opts WriterOptions) *ArtifactWriter {
	if opts.File == "" {
		opts.File = "products.json"
	}
	if opts.JSVar == "" {
		opts.JSVar = "PRODUCTS_DATA"
	}
	return &ArtifactWriter{opts: opts}
}

// Write stores the artifact and returns the paths written.
func (w *ArtifactWriter) Write(artifact *models.Artifact) ([]string, error) {
	if artifact == nil {
		return nil, fmt.Errorf("%w: nil artifact", ErrWrite)
	}

	if w.opts.Dir != "" {
		if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}

	data, err := encode(artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	jsonPath := filepath.Join(w.opts.Dir, w.opts.File)
	if err := writeAtomic(jsonPath, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	paths := []string{jsonPath}

	if w.opts.JSFile != "" {
		var script bytes.Buffer
		fmt.Fprintf(&script, "window.%s = ", w.opts.JSVar)
		script.Write(bytes.TrimRight(data, "\n"))
		script.WriteString(";\n")

		jsPath := filepath.Join(w.opts.Dir, w.opts.JSFile)
		if err := writeAtomic(jsPath, script.Bytes()); err != nil {
			return paths, fmt.Errorf("%w: %w", ErrWrite, err)
		}
		paths = append(paths, jsPath)
	}

	return paths, nil
}

func encode(artifact *models.Artifact) ([]byte, error) {
	if artifact.Products == nil {
		copied := *artifact
		copied.Products = []models.Product{}
		artifact = &copied
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte) error {
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return err
	}
	return nil
}

func LoadArtifact(path string) (*models.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrNoArtifact, path)
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var artifact models.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	return &artifact, nil
}

// FileSource serves the artifact stored at path, reloading it when the file
// changes on disk.
type FileSource struct {
	path string

	mu       sync.RWMutex
	cached   *models.Artifact
	modTime  time.Time
	fileSize int64
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Latest(ctx context.Context) (*models.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrNoArtifact, s.path)
		}
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	s.mu.RLock()
	if s.cached != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.fileSize {
		artifact := s.cached
		s.mu.RUnlock()
		return artifact, nil
	}
	s.mu.RUnlock()

	artifact, err := LoadArtifact(s.path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = artifact
	s.modTime = info.ModTime()
	s.fileSize = info.Size()
	s.mu.Unlock()

	return artifact, nil
}
