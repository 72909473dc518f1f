package tensorcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/embedding"
)

// Embedder produces a vector from raw image bytes.
type Embedder interface {
	Embed(ctx context.Context, image []byte) (embedding.Vector, error)
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// GenerateOptions tunes a batch run.
type GenerateOptions struct {
	// Workers bounds concurrent embeddings; values below 1 mean 1.
	Workers int
	// Progress, when set, is called after each source image is handled.
	Progress func(done, total int)
}

// Skipped describes a source image that produced no entry.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// GenerateReport lists what a batch run wrote, in source order, and what it
// skipped.
type GenerateReport struct {
	Written []string  `json:"written"`
	Skipped []Skipped `json:"skipped"`
}

// Count is the number of entries written.
func (r *GenerateReport) Count() int {
	return len(r.Written)
}

type generateJob struct {
	path string
	name string
}

type generateOutcome struct {
	written bool
	reason  string
}

// Generate embeds every image under srcDir (recursively, in lexical order)
// and saves each as an entry named after the file. Images without a usable
// face are skipped and reported; storage and backend failures abort the run.
// When two files map to the same name the first one wins.
func (c *Cache) Generate(ctx context.Context, srcDir string, embedder Embedder, opts GenerateOptions) (*GenerateReport, error) {
	jobs, skipped, err := collectSources(srcDir)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]generateOutcome, len(jobs))
	total := len(jobs) + len(skipped)
	done := len(skipped)
	var mu sync.Mutex
	if opts.Progress != nil && done > 0 {
		opts.Progress(done, total)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			outcome, err := c.generateOne(gctx, job, embedder)
			if err != nil {
				return err
			}
			outcomes[i] = outcome

			if opts.Progress != nil {
				mu.Lock()
				done++
				opts.Progress(done, total)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &GenerateReport{Written: []string{}, Skipped: skipped}
	for i, job := range jobs {
		if outcomes[i].written {
			report.Written = append(report.Written, job.name)
			continue
		}
		report.Skipped = append(report.Skipped, Skipped{Path: job.path, Reason: outcomes[i].reason})
	}

	c.logger.Info("cache generation finished",
		zap.String("source", srcDir),
		zap.Int("written", len(report.Written)),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

func (c *Cache) generateOne(ctx context.Context, job generateJob, embedder Embedder) (generateOutcome, error) {
	data, err := os.ReadFile(job.path)
	if err != nil {
		return generateOutcome{}, fmt.Errorf("read %s: %w", job.path, err)
	}

	v, err := embedder.Embed(ctx, data)
	if err != nil {
		if errors.Is(err, domain.ErrNoFaceDetected) || errors.Is(err, domain.ErrInvalidImage) {
			c.logger.Warn("skipping source image", zap.String("path", job.path), zap.Error(err))
			return generateOutcome{reason: domain.AsAppError(err).Code}, nil
		}
		return generateOutcome{}, fmt.Errorf("embed %s: %w", job.path, err)
	}

	if err := c.Save(ctx, job.name, v); err != nil {
		return generateOutcome{}, fmt.Errorf("save entry %q: %w", job.name, err)
	}
	return generateOutcome{written: true}, nil
}

// collectSources walks srcDir and returns one job per distinct entry name,
// plus the files rejected before embedding.
func collectSources(srcDir string) ([]generateJob, []Skipped, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("source %s is not a directory", srcDir)
	}

	var (
		jobs    []generateJob
		skipped []Skipped
		seen    = map[string]string{}
	)
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		name := EntryName(path)
		if err := ValidateName(name); err != nil {
			skipped = append(skipped, Skipped{Path: path, Reason: domain.ErrInvalidEntryName.Code})
			return nil
		}
		if first, ok := seen[name]; ok {
			skipped = append(skipped, Skipped{Path: path, Reason: "DUPLICATE_NAME of " + first})
			return nil
		}
		seen[name] = path
		jobs = append(jobs, generateJob{path: path, name: name})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk source directory: %w", err)
	}
	return jobs, skipped, nil
}
