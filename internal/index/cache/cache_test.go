package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildOne() (*Entry, error) {
	docs := []index.Document{{ID: "a", Path: "a", Content: "alpha beta"}}
	return &Entry{Index: index.Build(docs, tokenizer.New(tokenizer.DefaultOptions()))}, nil
}

func TestGetOrBuildCachesByFingerprint(t *testing.T) {
	c := New(2)
	var builds atomic.Int32
	build := func() (*Entry, error) {
		builds.Add(1)
		return buildOne()
	}

	first, hit, err := c.GetOrBuild(42, build)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrBuild(42, build)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), builds.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrBuildCollapsesConcurrentBuilds(t *testing.T) {
	c := New(4)
	var builds atomic.Int32
	release := make(chan struct{})
	build := func() (*Entry, error) {
		builds.Add(1)
		<-release
		return buildOne()
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrBuild(7, build)
			assert.NoError(t, err)
		}()
	}
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, builds.Load(), int32(8))
	assert.Equal(t, 1, c.Len())
}

func TestGetOrBuildDoesNotCacheErrors(t *testing.T) {
	c := New(1)
	boom := errors.New("boom")
	_, _, err := c.GetOrBuild(1, func() (*Entry, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestEviction(t *testing.T) {
	c := New(1)
	_, _, _ = c.GetOrBuild(1, buildOne)
	_, _, _ = c.GetOrBuild(2, buildOne)
	assert.Equal(t, 1, c.Len())
	c.Purge()
	assert.Equal(t, 0, c.Len())
}
