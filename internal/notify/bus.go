// Package notify fans store notifications out to UI subscribers.
package notify

import (
	"sync"

	"github.com/mauzec/taskindex/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Kind string

const (
	KindResultChanged Kind = "result-changed"
	KindMoreLoaded    Kind = "more-loaded"
	KindNoMore        Kind = "no-more"
	KindLoadFailed    Kind = "load-failed"

	KindTaskCreated   Kind = "task-created"
	KindTaskUpdated   Kind = "task-updated"
	KindTaskDeleted   Kind = "task-deleted"
	KindTaskCompleted Kind = "task-completed"
)

// Event is one notification. Domain events carry Task and State; result
// changes carry Tasks; pagination events carry Scope and Loaded.
type Event struct {
	Kind  Kind              `json:"kind"`
	Task  *core.Task        `json:"task,omitempty"`
	State core.OutcomeState `json:"state,omitempty"`

	Tasks []*core.Task `json:"tasks,omitempty"`

	Scope  string `json:"scope,omitempty"`
	Loaded int    `json:"loaded,omitempty"`

	Error string `json:"error,omitempty"`
}

// Publisher receives store notifications.
type Publisher interface {
	Publish(ev Event)
}

var Dropped = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "taskindex",
	Subsystem: "notify",
	Name:      "dropped_events",
})

const DefaultBuffer = 64

// Bus delivers every published event to every subscriber. A subscriber whose
// buffer is full misses the event; the drop is logged and counted.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	next   uint64
	closed bool

	buffer int
	logger *zap.Logger
}

func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns a channel of events and a func to stop receiving them.
// The channel is closed on unsubscribe or Close.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			Dropped.Inc()
			b.logger.Warn("subscriber too slow, event dropped",
				zap.Uint64("subscriber", id),
				zap.String("kind", string(ev.Kind)),
			)
		}
	}
}

// Close closes every subscriber channel; later subscribers get a closed one.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers is the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{Dropped}
}
