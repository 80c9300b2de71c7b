package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRejectsUnencodableValue(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:1"}}, "research-events")
	defer p.Close()
	assert.Equal(t, "research-events", p.Topic())

	err := p.Publish(context.Background(), Event{Key: "run-1", Value: make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-1")
}

func TestPingWithoutBrokers(t *testing.T) {
	p := NewProducer(config.KafkaConfig{}, "research-events")
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, p.Ping(ctx))
}
