package host

import "github.com/wippyai/classbridge"

// EventType identifies an engine-side object event.
type EventType uint8

const (
	EventAllocated EventType = iota
	EventRetained
	EventReleased
	EventFreed
	EventDefaultCalled
)

func (t EventType) String() string {
	switch t {
	case EventAllocated:
		return "allocated"
	case EventRetained:
		return "retained"
	case EventReleased:
		return "released"
	case EventFreed:
		return "freed"
	case EventDefaultCalled:
		return "default_called"
	}
	return "unknown"
}

// Event is emitted for every object lifecycle change and default call.
type Event struct {
	Class  string
	Method string
	ID     classbridge.ObjectID
	Refs   int32
	Type   EventType
}

// Observer receives engine events. Observers run synchronously after the
// engine lock is released.
type Observer interface {
	OnEngineEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEngineEvent(e Event) { f(e) }
