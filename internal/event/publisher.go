package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signet_events_published_total",
		Help: "Domain events accepted for publication, by type",
	}, []string{"type"})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signet_events_dropped_total",
		Help: "Domain events dropped because the publisher buffer was full",
	})
)

// Sink receives events for delivery. Implementations own their retries.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher buffers events on a channel and drains them to the sink from a
// background worker, so emitting from a request path never blocks on the
// sink. Emit is fail-open: when the buffer is full the event is dropped and
// counted, not waited for.
type Publisher struct {
	sink   Sink
	inbox  chan Event
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for delivery failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithBuffer sets the inbox capacity.
func WithBuffer(n int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan Event, n)
	}
}

// NewPublisher constructs a publisher over the given sink.
func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:   sink,
		inbox:  make(chan Event, 256),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit queues an event for delivery. Never blocks, never returns an error to
// the caller: event loss must not abort the primary operation.
func (p *Publisher) Emit(_ context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
		eventsPublished.WithLabelValues(string(event.Type)).Inc()
	default:
		eventsDropped.Inc()
		p.logger.Warn("event buffer full, dropping event", "type", string(event.Type))
	}
}

// Run drains the inbox until ctx is cancelled. Sink failures are logged and
// the worker keeps going.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.inbox:
			if err := p.sink.Append(ctx, ev); err != nil {
				p.logger.Error("event delivery failed",
					"type", string(ev.Type),
					"error", err,
				)
			}
		}
	}
}

// MemorySink collects events in memory; the default sink for tests and
// single-node deployments.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink constructs an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything appended so far.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
