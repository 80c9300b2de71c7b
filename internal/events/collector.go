// Package events publishes a run-completed event to Kafka for every finished
// research run and folds those events into service-wide run statistics.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/resilience"
)

const TypeRunCompleted = "research.run_completed"

// RunCompleted is the payload of a run-completed event.
type RunCompleted struct {
	Type              string          `json:"type"`
	RunID             string          `json:"run_id"`
	Query             string          `json:"query"`
	Workspace         string          `json:"workspace"`
	Status            research.Status `json:"status"`
	ConfidenceScore   float64         `json:"confidence_score"`
	TotalResults      int             `json:"total_results"`
	FilesAnalyzed     int             `json:"files_analyzed"`
	IterationsRun     int             `json:"iterations_run"`
	TerminationReason string          `json:"termination_reason"`
	Warnings          int             `json:"warnings"`
	DurationMS        int64           `json:"duration_ms"`
	Timestamp         time.Time       `json:"timestamp"`
}

func FromReport(rep *research.Report) RunCompleted {
	return RunCompleted{
		Type:              TypeRunCompleted,
		RunID:             rep.RunID,
		Query:             rep.Query,
		Workspace:         rep.Workspace,
		Status:            rep.Status,
		ConfidenceScore:   rep.ConfidenceScore,
		TotalResults:      rep.TotalResults,
		FilesAnalyzed:     rep.FilesAnalyzed,
		IterationsRun:     rep.IterationsRun,
		TerminationReason: rep.TerminationReason,
		Warnings:          len(rep.Warnings),
		DurationMS:        rep.DurationMS,
		Timestamp:         time.Now().UTC(),
	}
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector buffers events and publishes them from a single goroutine so a
// slow or unavailable broker never blocks a research run. Publishing goes
// through a circuit breaker; events are dropped while it is open.
type Collector struct {
	publisher Publisher
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
	eventCh   chan RunCompleted
	logger    *slog.Logger
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewCollector(publisher Publisher, bufferSize int, breaker *resilience.CircuitBreaker) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("kafka-events", resilience.CircuitBreakerConfig{})
	}
	return &Collector{
		publisher: publisher,
		breaker:   breaker,
		retry:     resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 50 * time.Millisecond},
		eventCh:   make(chan RunCompleted, bufferSize),
		logger:    logger.WithComponent("events-collector"),
		done:      make(chan struct{}),
	}
}

// Start launches the publishing goroutine. Close must be called to stop it.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("events collector started", "buffer_size", cap(c.eventCh))
}

// RunCompleted enqueues the event for rep.
func (c *Collector) RunCompleted(_ context.Context, rep *research.Report) {
	c.Track(FromReport(rep))
}

// Track enqueues event without blocking. Events tracked after Close are
// dropped.
func (c *Collector) Track(event RunCompleted) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Warn("run event dropped (collector closed)", "run_id", event.RunID)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("run event dropped (buffer full)", "run_id", event.RunID)
	}
}

// Close stops accepting events and waits until the buffered ones are sent.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event RunCompleted) {
	err := c.breaker.Execute(func() error {
		return resilience.Retry(ctx, "publish-run-event", c.retry, func() error {
			return c.publisher.Publish(ctx, kafka.Event{Key: event.RunID, Value: event})
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("run event dropped (circuit open)", "run_id", event.RunID)
		return
	}
	if err != nil {
		c.logger.Error("failed to publish run event", "run_id", event.RunID, "error", err)
	}
}

func (c *Collector) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(ctx, event)
		default:
			return
		}
	}
}
