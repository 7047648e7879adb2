// Package stream fans newly tailed records out to live subscribers over
// Server-Sent Events and WebSocket connections.
package stream

import (
	"log/slog"
	"sync"

	"github.com/onnwee/sentinel/internal/tail"
)

// DefaultBuffer is the number of batches a subscription can hold before
// further batches are dropped for it.
const DefaultBuffer = 64

// Subscription is one subscriber's bounded queue of record batches.
type Subscription struct {
	ch chan []tail.Record
}

// C returns the channel batches are delivered on. It is closed by Unsubscribe.
func (s *Subscription) C() <-chan []tail.Record {
	return s.ch
}

// Publisher fans out record batches to subscribers. Publish never blocks: a
// subscriber whose queue is full misses that batch and the others are unaffected.
// Subscribers only receive batches published after they subscribe.
type Publisher struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int

	logger  *slog.Logger
	metrics *Metrics
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets the logger used for drop warnings.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics enables subscriber and drop metrics.
func WithMetrics(m *Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// NewPublisher creates a Publisher whose subscriptions hold up to buffer
// batches. A non-positive buffer uses DefaultBuffer.
func NewPublisher(buffer int, opts ...PublisherOption) *Publisher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	p := &Publisher{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers a new subscription.
func (p *Publisher) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan []tail.Record, p.buffer)}

	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.IncSubscribers()
	}
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is a no-op.
func (p *Publisher) Unsubscribe(sub *Subscription) {
	p.mu.Lock()
	_, ok := p.subs[sub]
	if ok {
		delete(p.subs, sub)
		close(sub.ch)
	}
	p.mu.Unlock()

	if ok && p.metrics != nil {
		p.metrics.DecSubscribers()
	}
}

// Publish offers batch to every subscriber. Empty batches are ignored.
func (p *Publisher) Publish(batch []tail.Record) {
	if len(batch) == 0 {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.metrics != nil {
		p.metrics.AddRecordsPublished(len(batch))
	}
	for sub := range p.subs {
		select {
		case sub.ch <- batch:
		default:
			p.logger.Warn("subscriber queue full, dropping batch", "records", len(batch))
			if p.metrics != nil {
				p.metrics.IncBatchesDropped()
			}
		}
	}
}

// Count returns the number of active subscriptions.
func (p *Publisher) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}
