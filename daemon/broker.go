package daemon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"rpp/internal/metrics"
	"rpp/plugin"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrBrokerClosed is returned by Publish after Close
var ErrBrokerClosed = errors.New("broker is closed")

// Subscription represents a subscriber's subscription
type Subscription struct {
	id     string
	ch     chan plugin.Message
	topics []string
}

// Broker implements a topic-based pub/sub message broker. Presences
// publish activity on it; sinks subscribe.
type Broker struct {
	mu             sync.RWMutex
	subscriptions  map[string]*Subscription
	closed         bool
	publishTimeout time.Duration

	// retained holds the last message per source for retained topics
	retainMu sync.Mutex
	retained map[string]map[string]plugin.Message

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewBroker creates a new message broker
func NewBroker(logger *zap.Logger, m *metrics.Collector) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subscriptions:  make(map[string]*Subscription),
		publishTimeout: 5 * time.Second,
		retained:       make(map[string]map[string]plugin.Message),
		logger:         logger.With(zap.String("component", "broker")),
		metrics:        m,
	}
}

// Subscribe creates a new subscription for the given topics
// Returns a channel that will receive matching messages
func (b *Broker) Subscribe(id string, bufSize int, topics ...string) <-chan plugin.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.logger.Warn("subscribe on closed broker", zap.String("subscriber", id))
		ch := make(chan plugin.Message)
		close(ch)
		return ch
	}

	// If subscription already exists, close old channel and replace
	if old, exists := b.subscriptions[id]; exists {
		b.logger.Debug("replacing subscription", zap.String("subscriber", id))
		close(old.ch)
	}

	if bufSize < 0 {
		bufSize = 0
	}
	sub := &Subscription{
		id:     id,
		ch:     make(chan plugin.Message, bufSize),
		topics: topics,
	}

	b.subscriptions[id] = sub
	replayed := b.replay(sub)
	b.logger.Debug("subscribed",
		zap.String("subscriber", id),
		zap.Strings("topics", topics),
		zap.Int("buffer", bufSize),
		zap.Int("replayed", replayed),
	)

	return sub.ch
}

// Publish broadcasts a message to all interested subscribers
// Uses fan-out pattern with concurrent delivery and timeout handling
func (b *Broker) Publish(ctx context.Context, msg plugin.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	b.metrics.RecordMessage(msg.Topic)
	b.retain(msg)

	// Find matching subscriptions
	var targets []*Subscription
	for _, sub := range b.subscriptions {
		if sub.wantsTopic(msg.Topic) {
			targets = append(targets, sub)
		}
	}

	if len(targets) == 0 {
		return nil
	}

	// Fan-out: publish to all subscribers concurrently
	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range targets {
		sub := sub
		g.Go(func() error {
			return b.publishToSubscriber(gctx, sub, msg)
		})
	}

	if err := g.Wait(); err != nil {
		b.logger.Warn("publish failed", zap.String("topic", msg.Topic), zap.String("source", msg.Source), zap.Error(err))
		return fmt.Errorf("publish failed: %w", err)
	}

	return nil
}

// publishToSubscriber sends a message to a single subscriber with timeout
func (b *Broker) publishToSubscriber(ctx context.Context, sub *Subscription, msg plugin.Message) error {
	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()

	select {
	case sub.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timeout publishing to %s (slow consumer)", sub.id)
	}
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscriptions[id]; ok {
		close(sub.ch)
		delete(b.subscriptions, id)
		b.logger.Debug("unsubscribed", zap.String("subscriber", id))
	}
}

// Close shuts down the broker and closes all subscription channels
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscriptions {
		close(sub.ch)
	}
	b.subscriptions = make(map[string]*Subscription)

	b.logger.Debug("broker closed")
}

// SubscriberCount returns the current number of subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// SetPublishTimeout sets the timeout for publishing to slow consumers
func (b *Broker) SetPublishTimeout(timeout time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if timeout > 0 {
		b.publishTimeout = timeout
	}
}

// Retain makes the broker remember the latest message per source on each
// topic and hand it to subscribers that join later.
func (b *Broker) Retain(topics ...string) {
	b.retainMu.Lock()
	defer b.retainMu.Unlock()
	for _, topic := range topics {
		if _, ok := b.retained[topic]; !ok {
			b.retained[topic] = make(map[string]plugin.Message)
		}
	}
}

func (b *Broker) retain(msg plugin.Message) {
	b.retainMu.Lock()
	defer b.retainMu.Unlock()
	if bySource, ok := b.retained[msg.Topic]; ok {
		bySource[msg.Source] = msg
	}
}

// replay delivers retained messages sub wants, sorted by topic then
// source, without blocking. Messages beyond the buffer are dropped.
func (b *Broker) replay(sub *Subscription) int {
	b.retainMu.Lock()
	var pending []plugin.Message
	for topic, bySource := range b.retained {
		if !sub.wantsTopic(topic) {
			continue
		}
		for _, msg := range bySource {
			pending = append(pending, msg)
		}
	}
	b.retainMu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Topic != pending[j].Topic {
			return pending[i].Topic < pending[j].Topic
		}
		return pending[i].Source < pending[j].Source
	})

	sent := 0
	for _, msg := range pending {
		select {
		case sub.ch <- msg:
			sent++
		default:
			return sent
		}
	}
	return sent
}

// wantsTopic checks if a subscription is interested in a topic
func (s *Subscription) wantsTopic(topic string) bool {
	// Empty topics list means subscribe to all
	if len(s.topics) == 0 {
		return true
	}

	for _, t := range s.topics {
		if t == topic || t == "*" {
			return true
		}
	}

	return false
}
