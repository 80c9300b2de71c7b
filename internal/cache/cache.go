// Package cache stores finished research reports in Redis so repeated runs
// of the same query over an unchanged workspace are answered without
// searching again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/redis"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "research:"

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

type ReportCache struct {
	kv      KV
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over kv. m may be nil.
func New(kv KV, ttl time.Duration, m *metrics.Metrics) *ReportCache {
	return &ReportCache{
		kv:      kv,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "report-cache"),
	}
}

// Key identifies a run by its normalised query, workspace and the part of
// the config that affects results. fingerprint should change whenever the
// workspace content does.
func Key(query, root string, fingerprint uint64, cfg config.ResearchConfig) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	cfgJSON, _ := json.Marshal(cfg)
	raw := fmt.Sprintf("%s|%s|%x|%s", normalizeQuery(query), abs, fingerprint, cfgJSON)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *ReportCache) Get(ctx context.Context, key string) (*research.Report, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	plain, err := decoder.DecodeAll([]byte(data), nil)
	if err != nil {
		c.logger.Error("cache decompress failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	var rep research.Report
	if err := json.Unmarshal(plain, &rep); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key, "run_id", rep.RunID)
	return &rep, true
}

// Set stores rep. Cancelled reports are partial and never cached.
func (c *ReportCache) Set(ctx context.Context, key string, rep *research.Report) {
	if rep == nil || rep.Status == research.StatusCancelled {
		return
	}
	data, err := json.Marshal(rep)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, encoder.EncodeAll(data, nil), c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached report for key or runs computeFn once
// across concurrent callers with the same key. The shared run belongs to
// whichever caller started it; when it comes back cancelled while ctx is still
// live, computeFn runs again for this caller.
func (c *ReportCache) GetOrCompute(
	ctx context.Context,
	key string,
	computeFn func() (*research.Report, error),
) (*research.Report, bool, error) {
	if rep, ok := c.Get(ctx, key); ok {
		return rep, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if rep, ok := c.Get(ctx, key); ok {
			return rep, nil
		}
		rep, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, rep)
		return rep, nil
	})
	if err != nil {
		return nil, false, err
	}
	rep := val.(*research.Report)
	if rep.Status == research.StatusCancelled && ctx.Err() == nil {
		rep, err = computeFn()
		if err != nil {
			return nil, false, err
		}
		c.Set(ctx, key, rep)
	}
	return rep, false, nil
}

// Invalidate drops every cached report and returns how many were removed.
func (c *ReportCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.kv.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *ReportCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ReportCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
