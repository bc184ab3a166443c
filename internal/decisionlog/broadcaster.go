package decisionlog

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/domain"
)

const defaultSubscriberBuffer = 16

// Broadcaster fans appended decisions out to live subscribers. Publishing
// never blocks: a subscriber whose buffer is full misses the record.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]chan *domain.DecisionRecord
	nextID uint64
	buffer int
	closed bool
	logger *logrus.Logger
}

// NewBroadcaster creates a broadcaster whose subscribers buffer up to buffer records.
func NewBroadcaster(buffer int, logger *logrus.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:   make(map[uint64]chan *domain.DecisionRecord),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel func unregisters
// it and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan *domain.DecisionRecord, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *domain.DecisionRecord, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers record to every subscriber with buffer space.
func (b *Broadcaster) Publish(record *domain.DecisionRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- record:
		default:
			b.logger.WithFields(logrus.Fields{
				"subscriber":  id,
				"decision_id": record.ID,
			}).Debug("Subscriber buffer full, dropping decision")
		}
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.closed = true
}
