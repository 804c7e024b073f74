package registry

import (
	"slices"
	"sync"

	"github.com/wippyai/classbridge/class"
	"github.com/wippyai/classbridge/errors"
)

// Process-wide declarations, filled from package init functions and read
// once per library load.
var declared struct {
	classes []*class.Class
	errs    errors.RegistrationErrors
	mu      sync.Mutex
}

// Declare adds a class to the process-wide declaration list. It takes the
// result of class.Derive or Builder.Class directly:
//
//	func init() { registry.Declare(class.Derive[Monster]("Monster")) }
//
// A derivation error is kept and reported at load time instead of
// panicking during init.
func Declare(c *class.Class, err error) {
	declared.mu.Lock()
	defer declared.mu.Unlock()
	if err != nil {
		declared.errs.Add(err)
		return
	}
	if c != nil {
		declared.classes = append(declared.classes, c)
	}
}

// DeclareType derives T and declares it.
func DeclareType[T any](name string, opts ...class.Option) {
	Declare(class.Derive[T](name, opts...))
}

// Declarations returns the declared classes in declaration order, plus the
// derivation errors collected so far.
func Declarations() ([]*class.Class, error) {
	declared.mu.Lock()
	defer declared.mu.Unlock()
	var errs errors.RegistrationErrors
	errs.Errors = slices.Clone(declared.errs.Errors)
	return slices.Clone(declared.classes), errs.Err()
}

// ResetDeclarations clears the process-wide list. Tests use it to isolate
// runs.
func ResetDeclarations() {
	declared.mu.Lock()
	defer declared.mu.Unlock()
	declared.classes = nil
	declared.errs = errors.RegistrationErrors{}
}
