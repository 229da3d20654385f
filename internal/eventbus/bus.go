// Package eventbus is an in-memory fanout used to tell the operator surface
// about finished update cycles without coupling it to the worker.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event carries a small payload. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// Memory is the default Bus. It owns no goroutines.
type Memory struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	next    uint64
	dropped atomic.Uint64
}

func New() *Memory {
	return &Memory{subs: map[uint64]chan Event{}}
}

func (b *Memory) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Memory) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *Memory) Dropped() uint64 { return b.dropped.Load() }
