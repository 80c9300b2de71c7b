package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewWithRegistryIsolated(t *testing.T) {
	// two registries must not collide
	m1 := NewWithRegistry(prometheus.NewRegistry())
	m2 := NewWithRegistry(prometheus.NewRegistry())

	m1.ResearchRunsTotal.WithLabelValues("completed").Inc()
	m1.ResearchRunsTotal.WithLabelValues("completed").Inc()
	m2.ResearchRunsTotal.WithLabelValues("cancelled").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m1.ResearchRunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.ResearchRunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m2.ResearchRunsTotal.WithLabelValues("cancelled")))
}
