// Package notifier delivers committed transaction events to subscribers
package notifier

import (
	"context"
	"sync"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/messaging"
)

// Broadcaster fans events out to in-process subscribers such as SSE streams.
// A subscriber whose buffer is full misses the event; clients resync by
// reading the transaction.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan *entity.TransactionEvent
	nextID      uint64
	logger      coreport.Logger
}

var _ messaging.Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster with no subscribers
func NewBroadcaster(logger coreport.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan *entity.TransactionEvent),
		logger:      logger,
	}
}

// Subscribe registers a subscriber. The returned cancel func must be called
// to release it; the channel is closed afterwards.
func (b *Broadcaster) Subscribe(buffer int) (<-chan *entity.TransactionEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *entity.TransactionEvent, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish implements messaging.Notifier
func (b *Broadcaster) Publish(ctx context.Context, event *entity.TransactionEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Warn("Dropping event for slow subscriber", map[string]any{
				"subscriber": id,
				"event_id":   event.ID,
			})
		}
	}
	return nil
}
