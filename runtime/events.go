package runtime

import (
	"github.com/wippyai/classbridge"
)

// EventType identifies an instance lifecycle transition.
type EventType uint8

const (
	EventConstructed EventType = iota
	EventConstructionFailed
	EventDestroyed
)

func (t EventType) String() string {
	switch t {
	case EventConstructed:
		return "constructed"
	case EventConstructionFailed:
		return "construction_failed"
	case EventDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Event describes one lifecycle transition.
type Event struct {
	Err   error
	Class string
	ID    classbridge.ObjectID
	Type  EventType
}

// Observer receives lifecycle events synchronously.
type Observer interface {
	OnLifecycle(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnLifecycle(e Event) { f(e) }

// Subscribe adds an observer and returns a function that removes it.
func (b *Bridge) Subscribe(o Observer) (cancel func()) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	id := b.nextObs
	b.nextObs++
	b.observers[id] = o
	return func() {
		b.obsMu.Lock()
		defer b.obsMu.Unlock()
		delete(b.observers, id)
	}
}

func (b *Bridge) notify(e Event) {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	for _, o := range b.observers {
		o.OnLifecycle(e)
	}
}
