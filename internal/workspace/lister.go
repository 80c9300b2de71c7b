// Package workspace is the read-only file collaborator of the research
// engine: it lists the files of a workspace root, reads and parses them into
// index documents and summarises what kinds of files are present.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
	"github.com/bmatcuk/doublestar/v4"
)

// FileInfo describes one candidate file. Path is slash-separated and relative
// to the workspace root.
type FileInfo struct {
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Lister walks a workspace and applies include/exclude glob patterns.
type Lister struct {
	include  []string
	exclude  []string
	maxSize  int64
	maxFiles int
	logger   *slog.Logger
}

func NewLister(cfg config.WorkspaceConfig) *Lister {
	return &Lister{
		include:  append([]string(nil), cfg.Include...),
		exclude:  append([]string(nil), cfg.Exclude...),
		maxSize:  cfg.MaxFileSize,
		maxFiles: cfg.MaxFiles,
		logger:   slog.Default().With("component", "workspace-lister"),
	}
}

// List returns the matching regular files under root sorted by path. A root
// that does not exist or is not a directory is an InvalidConfig error.
func (l *Lister) List(ctx context.Context, root string) ([]FileInfo, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.InvalidConfig("workspace root %q: %v", root, err)
	}
	if !st.IsDir() {
		return nil, apperrors.InvalidConfig("workspace root %q is not a directory", root)
	}

	var files []FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			l.logger.Warn("skipping unreadable path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if l.excluded(rel) || l.excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || l.excluded(rel) || !l.included(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			l.logger.Warn("skipping file without stat", "path", rel, "error", err)
			return nil
		}
		if l.maxSize > 0 && info.Size() > l.maxSize {
			l.logger.Debug("skipping oversized file", "path", rel, "size", info.Size())
			return nil
		}
		files = append(files, FileInfo{
			Path:    rel,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking workspace %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	if l.maxFiles > 0 && len(files) > l.maxFiles {
		l.logger.Warn("workspace file limit reached", "files", len(files), "limit", l.maxFiles)
		files = files[:l.maxFiles]
	}
	return files, nil
}

func (l *Lister) excluded(path string) bool {
	return MatchAny(l.exclude, path)
}

func (l *Lister) included(path string) bool {
	if len(l.include) == 0 {
		return true
	}
	return MatchAny(l.include, path)
}

// MatchAny reports whether path matches one of the doublestar patterns.
// Malformed patterns never match.
func MatchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
