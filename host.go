package classbridge

import (
	"context"

	"github.com/wippyai/classbridge/variant"
)

// ObjectID is the host-side identity of an engine object. Zero is invalid.
type ObjectID = variant.ObjectID

// RootClass is the implicit base of every class that does not name one.
const RootClass = "Object"

// Host is the engine side of the bridge. The bridge never allocates or frees
// engine objects itself; it asks the host.
type Host interface {
	// HasClass reports whether name is a native engine class.
	HasClass(name string) bool

	// Parent returns the engine superclass of a native class. ok is false for
	// the root class and for unknown classes; HasClass tells them apart.
	Parent(name string) (string, bool)

	// Allocate creates an engine-owned base object of a native class.
	Allocate(ctx context.Context, class string) (ObjectID, error)

	// ClassOf returns the native class of a live object.
	ClassOf(id ObjectID) (string, bool)

	// Release gives up the bridge's claim on a base object. For reference
	// counted classes this drops one reference; otherwise the object is freed.
	Release(ctx context.Context, id ObjectID) error

	// CallDefault runs the engine's own implementation of method on id.
	CallDefault(ctx context.Context, id ObjectID, method string, args []variant.Variant) (variant.Variant, error)

	// Get reads an engine property of the base object.
	Get(ctx context.Context, id ObjectID, property string) (variant.Variant, error)

	// Set writes an engine property of the base object.
	Set(ctx context.Context, id ObjectID, property string, value variant.Variant) error
}

// IsSubclass reports whether the native class is ancestor or derives from it.
func IsSubclass(h Host, class, ancestor string) bool {
	for i := 0; class != "" && i < 64; i++ {
		if class == ancestor {
			return true
		}
		parent, ok := h.Parent(class)
		if !ok {
			return false
		}
		class = parent
	}
	return false
}
