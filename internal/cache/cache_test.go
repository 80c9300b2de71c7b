package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memoryKV) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func report(id string) *research.Report {
	return &research.Report{
		RunID:           id,
		Query:           "authentication",
		Status:          research.StatusCompleted,
		ConfidenceScore: 0.7,
		TotalResults:    4,
		KeyInsights:     []string{"Term \"token\" recurs across 2 of 4 results"},
	}
}

func TestKeyNormalisesQuery(t *testing.T) {
	cfg := config.DefaultResearch()
	a := Key("  Authentication   Flow ", "/ws", 1, cfg)
	b := Key("authentication flow", "/ws", 1, cfg)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, keyPrefix))

	assert.NotEqual(t, a, Key("authentication flow", "/ws", 2, cfg))
	cfg.MaxIterations = 7
	assert.NotEqual(t, a, Key("authentication flow", "/ws", 1, cfg))
}

func TestSetGetRoundTripCompressed(t *testing.T) {
	kv := newMemoryKV()
	c := New(kv, time.Minute, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "research:missing")
	assert.False(t, ok)

	c.Set(ctx, "research:k", report("r1"))
	raw := kv.data["research:k"]
	assert.True(t, strings.HasPrefix(raw, "\x28\xb5\x2f\xfd"), "stored value is a zstd frame")

	got, ok := c.Get(ctx, "research:k")
	require.True(t, ok)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, 0.7, got.ConfidenceScore)
	assert.Equal(t, report("r1").KeyInsights, got.KeyInsights)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCancelledReportsAreNotCached(t *testing.T) {
	kv := newMemoryKV()
	c := New(kv, time.Minute, nil)
	rep := report("r1")
	rep.Status = research.StatusCancelled
	c.Set(context.Background(), "research:k", rep)
	assert.Empty(t, kv.data)
}

func TestGetOrComputeCollapsesConcurrentCalls(t *testing.T) {
	c := New(newMemoryKV(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, _, err := c.GetOrCompute(context.Background(), "research:k", func() (*research.Report, error) {
				calls.Add(1)
				<-release
				return report("r1"), nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "r1", rep.RunID)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	_, cached, err := c.GetOrCompute(context.Background(), "research:k", func() (*research.Report, error) {
		return nil, errors.New("should not run")
	})
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestGetOrComputeRerunsWhenSharedRunWasCancelled(t *testing.T) {
	c := New(newMemoryKV(), time.Minute, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	gone, disconnect := context.WithCancel(context.Background())

	var first *research.Report
	done := make(chan struct{})
	go func() {
		defer close(done)
		first, _, _ = c.GetOrCompute(gone, "research:k", func() (*research.Report, error) {
			close(started)
			<-release
			rep := report("r1")
			rep.Status = research.StatusCancelled
			return rep, nil
		})
	}()
	<-started

	var calls atomic.Int32
	second := make(chan *research.Report, 1)
	go func() {
		rep, _, err := c.GetOrCompute(context.Background(), "research:k", func() (*research.Report, error) {
			calls.Add(1)
			return report("r2"), nil
		})
		assert.NoError(t, err)
		second <- rep
	}()
	time.Sleep(20 * time.Millisecond)
	disconnect()
	close(release)
	<-done

	rep := <-second
	assert.Equal(t, research.StatusCancelled, first.Status)
	assert.Equal(t, "r2", rep.RunID)
	assert.Equal(t, research.StatusCompleted, rep.Status)
	assert.Equal(t, int32(1), calls.Load())

	cached, ok := c.Get(context.Background(), "research:k")
	require.True(t, ok)
	assert.Equal(t, "r2", cached.RunID)
}

func TestGetOrComputePropagatesErrors(t *testing.T) {
	c := New(newMemoryKV(), time.Minute, nil)
	_, _, err := c.GetOrCompute(context.Background(), "research:k", func() (*research.Report, error) {
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}

func TestInvalidate(t *testing.T) {
	kv := newMemoryKV()
	kv.data["other:x"] = "keep"
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(kv, time.Minute, m)
	c.Set(context.Background(), "research:a", report("a"))
	c.Set(context.Background(), "research:b", report("b"))

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, kv.data, 1)

	_, ok := c.Get(context.Background(), "research:a")
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}
