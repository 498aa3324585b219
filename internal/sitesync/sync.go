package sitesync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Plan describes the static site layout. Zero fields take the defaults of
// the published storefront.
type Plan struct {
	Root      string
	DocsDir   string
	StoresDir string
	IndexFile string
	DataDir   string
}

func (p Plan) withDefaults() Plan {
	if p.Root == "" {
		p.Root = "."
	}
	if p.DocsDir == "" {
		p.DocsDir = "docs"
	}
	if p.StoresDir == "" {
		p.StoresDir = "stores"
	}
	if p.IndexFile == "" {
		p.IndexFile = "index.html"
	}
	if p.DataDir == "" {
		p.DataDir = "data"
	}
	return p
}

type Report struct {
	Copied  []string
	Skipped []string
	Stores  []string
}

// Sync mirrors the landing page and every store's page and data directory
// into the docs tree. Missing sources are skipped with a warning.
func Sync(ctx context.Context, plan Plan) (*Report, error) {
	plan = plan.withDefaults()
	logger := slog.Default().With("component", "sitesync")
	report := &Report{}

	docsDir := filepath.Join(plan.Root, plan.DocsDir)
	if err := os.MkdirAll(docsDir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create docs dir: %w", err)
	}

	s := &syncer{root: plan.Root, report: report, logger: logger}

	if err := s.copyFile(
		filepath.Join(plan.Root, plan.IndexFile),
		filepath.Join(docsDir, plan.IndexFile),
	); err != nil {
		return report, err
	}

	storesDir := filepath.Join(plan.Root, plan.StoresDir)
	entries, err := os.ReadDir(storesDir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("missing stores directory, skipping", "path", storesDir)
			report.Skipped = append(report.Skipped, s.rel(storesDir))
			return report, nil
		}
		return report, fmt.Errorf("failed to read stores dir: %w", err)
	}

	docsStores := filepath.Join(docsDir, plan.StoresDir)
	if err := os.MkdirAll(docsStores, 0o755); err != nil {
		return report, fmt.Errorf("failed to create docs stores dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := entry.Name()
		src := filepath.Join(storesDir, name)
		dest := filepath.Join(docsStores, name)
		report.Stores = append(report.Stores, name)

		if err := s.copyFile(filepath.Join(src, plan.IndexFile), filepath.Join(dest, plan.IndexFile)); err != nil {
			return report, err
		}
		if err := s.copyDir(filepath.Join(src, plan.DataDir), filepath.Join(dest, plan.DataDir)); err != nil {
			return report, err
		}
	}

	logger.Info("docs folder is up to date",
		"copied", len(report.Copied),
		"skipped", len(report.Skipped),
		"stores", len(report.Stores))

	return report, nil
}

type syncer struct {
	root   string
	report *Report
	logger *slog.Logger
}

func (s *syncer) rel(path string) string {
	if rel, err := filepath.Rel(s.root, path); err == nil {
		return rel
	}
	return path
}

func (s *syncer) copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("missing file, skipping", "path", s.rel(src))
			s.report.Skipped = append(s.report.Skipped, s.rel(src))
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	s.logger.Info("copied file", "from", s.rel(src), "to", s.rel(dest))
	s.report.Copied = append(s.report.Copied, s.rel(dest))
	return nil
}

// copyDir replaces dest with a copy of src.
func (s *syncer) copyDir(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		if err == nil || os.IsNotExist(err) {
			s.logger.Warn("missing directory, skipping", "path", s.rel(src))
			s.report.Skipped = append(s.report.Skipped, s.rel(src))
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dest, err)
	}
	if err := os.CopyFS(dest, os.DirFS(src)); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}

	s.logger.Info("synced directory", "from", s.rel(src), "to", s.rel(dest))
	s.report.Copied = append(s.report.Copied, s.rel(dest))
	return nil
}
