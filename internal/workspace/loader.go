package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/docparse"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
	"github.com/panjf2000/ants/v2"
)

// Skipped records a file that could not be turned into documents.
type Skipped struct {
	Path string
	Err  error
}

// Read returns the parsed text of a file. Failures to open or read wrap
// ErrUnreadableFile; formats docparse rejects wrap ErrUnsupportedFormat.
func Read(f FileInfo) (string, error) {
	raw, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", f.Path, apperrors.ErrUnreadableFile, err)
	}
	return docparse.Parse(f.Path, raw)
}

// Loader reads files concurrently and cuts them into index documents.
type Loader struct {
	workers      int
	sectionLines int
	logger       *slog.Logger
}

func NewLoader(workers, sectionLines int) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{
		workers:      workers,
		sectionLines: sectionLines,
		logger:       slog.Default().With("component", "workspace-loader"),
	}
}

// Load reads files through a bounded worker pool. Documents come back in the
// order of files regardless of which read finishes first; unreadable and
// unsupported files are reported in skipped rather than failing the load.
func (l *Loader) Load(ctx context.Context, files []FileInfo) (docs []index.Document, skipped []Skipped, err error) {
	if len(files) == 0 {
		return nil, nil, nil
	}
	pool, err := ants.NewPool(l.workers)
	if err != nil {
		return nil, nil, fmt.Errorf("creating read pool: %w", err)
	}
	defer pool.Release()

	contents := make([]string, len(files))
	errs := make([]error, len(files))
	var wg sync.WaitGroup
	for i := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return
			}
			contents[i], errs[i] = Read(files[i])
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = fmt.Errorf("%s: %w: %v", files[i].Path, apperrors.ErrUnreadableFile, submitErr)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	for i, f := range files {
		if errs[i] != nil {
			l.logger.Warn("skipping file", "path", f.Path, "error", errs[i])
			skipped = append(skipped, Skipped{Path: f.Path, Err: errs[i]})
			continue
		}
		docs = append(docs, index.Sections(f.Path, contents[i], l.sectionLines)...)
	}
	return docs, skipped, nil
}
