package runtime

import (
	"sync/atomic"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/registry"
)

// State is a step of the construction protocol.
type State uint32

const (
	Unallocated State = iota
	BaseReady
	Constructed
	ConstructionFailed
	DestroyRequested
	Destroyed
)

var stateNames = [...]string{
	Unallocated:        "unallocated",
	BaseReady:          "base_ready",
	Constructed:        "constructed",
	ConstructionFailed: "construction_failed",
	DestroyRequested:   "destroy_requested",
	Destroyed:          "destroyed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Instance is a composite the bridge has constructed on a host base object.
// Only the bridge creates instances.
type Instance struct {
	entry *registry.Entry
	base  *class.Base
	value any
	state atomic.Uint32
}

// ID returns the host object id of the base. It is fixed for the instance's
// lifetime.
func (i *Instance) ID() classbridge.ObjectID { return i.base.ID() }

// Class returns the registered class name.
func (i *Instance) Class() string { return i.entry.Class.Name() }

// Native returns the host class of the base object.
func (i *Instance) Native() string { return i.base.Class() }

func (i *Instance) State() State { return State(i.state.Load()) }

func (i *Instance) setState(s State) { i.state.Store(uint32(s)) }

// Value returns the composite, a pointer to the class's Go type. It is nil
// until the instance is constructed.
func (i *Instance) Value() any { return i.value }

// Base returns the base handle.
func (i *Instance) Base() *class.Base { return i.base }
