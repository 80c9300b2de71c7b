// Package cache keeps recently built term indexes keyed by workspace
// fingerprint so repeated runs over an unchanged workspace skip the load and
// build phase.
package cache

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/workspace"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Entry is a built index together with the files that were skipped while
// loading it, so cache hits can report the same warnings as the first build.
type Entry struct {
	Index   *index.TermIndex
	Skipped []workspace.Skipped
}

type IndexCache struct {
	entries *lru.Cache[uint64, *Entry]
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache holding at most size indexes. size below 1 is treated
// as 1.
func New(size int) *IndexCache {
	if size < 1 {
		size = 1
	}
	entries, _ := lru.New[uint64, *Entry](size)
	return &IndexCache{
		entries: entries,
		logger:  slog.Default().With("component", "index-cache"),
	}
}

// GetOrBuild returns the cached index for fingerprint or runs build exactly
// once across concurrent callers. hit is true when no build was needed.
func (c *IndexCache) GetOrBuild(fingerprint uint64, build func() (*Entry, error)) (entry *Entry, hit bool, err error) {
	if e, ok := c.entries.Get(fingerprint); ok {
		c.hits.Add(1)
		return e, true, nil
	}
	key := strconv.FormatUint(fingerprint, 16)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if e, ok := c.entries.Get(fingerprint); ok {
			return e, nil
		}
		built, err := build()
		if err != nil {
			return nil, err
		}
		c.entries.Add(fingerprint, built)
		c.logger.Debug("index cached", "fingerprint", key, "docs", built.Index.DocCount())
		return built, nil
	})
	if err != nil {
		return nil, false, err
	}
	c.misses.Add(1)
	return val.(*Entry), false, nil
}

func (c *IndexCache) Purge() {
	c.entries.Purge()
}

func (c *IndexCache) Len() int {
	return c.entries.Len()
}

func (c *IndexCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
