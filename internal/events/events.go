// Package events delivers filesystem change notifications to subscribers.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
)

// Type identifies an event.
type Type string

const (
	Created Type = "fs:created"
	Changed Type = "fs:changed"
	Deleted Type = "fs:deleted"
	Moved   Type = "fs:moved"
)

// Event describes one committed mutation. Fields that do not apply to the
// event type are left zero.
type Event struct {
	Type    Type       `json:"type"`
	Path    string     `json:"path,omitempty"`
	From    string     `json:"from,omitempty"`
	To      string     `json:"to,omitempty"`
	Kind    types.Kind `json:"kind,omitempty"`
	Size    int64      `json:"size,omitempty"`
	OldSize int64      `json:"old_size,omitempty"`
	NewSize int64      `json:"new_size,omitempty"`
	Time    time.Time  `json:"time"`
}

// Emitter receives events. Emit is called after the mutation has committed,
// while the mutated paths are still locked, so events for one path arrive in
// commit order. Emit must not block for long, must not mutate the
// filesystem and must not ReadFile the event's own paths; other reads are
// fine.
type Emitter interface {
	Emit(Event)
}

// Handler processes a single event.
type Handler func(Event)

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}

// Bus fans events out to subscribed handlers synchronously, in subscription
// order. A panicking handler is logged and does not affect the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]subscription
	all      []subscription
	nextID   uint64
	logger   *zap.Logger
}

type subscription struct {
	id      uint64
	handler Handler
}

// NewBus creates an empty event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]subscription),
		logger:   utils.OrNop(logger).Named("events"),
	}
}

// Subscribe registers handler for events of type t; an empty t subscribes to
// every type. The returned function removes the subscription.
func (b *Bus) Subscribe(t Type, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, handler: handler}
	if t == "" {
		b.all = append(b.all, sub)
	} else {
		b.handlers[t] = append(b.handlers[t], sub)
	}

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(t, sub.id) })
	}
}

// Emit implements Emitter.
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.handlers[e.Type])+len(b.all))
	subs = append(subs, b.handlers[e.Type]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(sub.handler, e)
	}
}

func (b *Bus) dispatch(handler Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("type", string(e.Type)),
				zap.String("path", e.Path),
				zap.Any("panic", r))
		}
	}()
	handler(e)
}

func (b *Bus) remove(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	filter := func(subs []subscription) []subscription {
		out := subs[:0:0]
		for _, s := range subs {
			if s.id != id {
				out = append(out, s)
			}
		}
		return out
	}
	if t == "" {
		b.all = filter(b.all)
		return
	}
	b.handlers[t] = filter(b.handlers[t])
	if len(b.handlers[t]) == 0 {
		delete(b.handlers, t)
	}
}
