package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseDescribe  Phase = "describe"  // descriptor derivation
	PhaseRegister  Phase = "register"  // registration table
	PhaseConstruct Phase = "construct" // construction protocol
	PhaseDispatch  Phase = "dispatch"  // virtual dispatch
	PhaseMarshal   Phase = "marshal"   // field marshalling
	PhaseTeardown  Phase = "teardown"  // destroy sequence
	PhaseHost      Phase = "host"      // calls into the host runtime
	PhaseLoad      Phase = "load"      // library load/unload and configuration
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicateClass     Kind = "duplicate_class"
	KindUnknownBase        Kind = "unknown_base"
	KindCycle              Kind = "cycle"
	KindReservedName       Kind = "reserved_name"
	KindDuplicateField     Kind = "duplicate_field"
	KindNoDefault          Kind = "no_default"
	KindUnsupported        Kind = "unsupported"
	KindSealed             Kind = "sealed"
	KindConstructionFailed Kind = "construction_failed"
	KindAlreadyBound       Kind = "already_bound"
	KindIncompatibleBase   Kind = "incompatible_base"
	KindTypeMismatch       Kind = "type_mismatch"
	KindOverflow           Kind = "overflow"
	KindDispatchAbort      Kind = "dispatch_abort"
	KindNotFound           Kind = "not_found"
	KindNotInitialized     Kind = "not_initialized"
	KindReentrant          Kind = "reentrant"
	KindInvalidInput       Kind = "invalid_input"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Class    string
	GoType   string
	HostType string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Class != "" || len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(e.location())
	}

	if e.GoType != "" || e.HostType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.HostType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", host type ")
			b.WriteString(e.HostType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("host type ")
			b.WriteString(e.HostType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.HostType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

func (e *Error) location() string {
	if len(e.Path) == 0 {
		return e.Class
	}
	path := strings.Join(e.Path, ".")
	if e.Class == "" {
		return path
	}
	return e.Class + "." + path
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether any *Error in err's chain has the given kind,
// regardless of phase.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		if agg, ok := err.(*RegistrationErrors); ok {
			for _, e := range agg.Errors {
				if IsKind(e, kind) {
					return true
				}
			}
			return false
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Class sets the class name
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// HostType sets the host value type name
func (b *Builder) HostType(t string) *Builder {
	b.err.HostType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the bridge taxonomy

// DuplicateClass reports a second, different registration under an existing name
func DuplicateClass(class string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindDuplicateClass,
		Class:  class,
		Detail: "class already registered with a different descriptor",
	}
}

// UnknownBase reports a base that resolves to neither a host class nor a registered class
func UnknownBase(class, base string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindUnknownBase,
		Class:  class,
		Detail: fmt.Sprintf("base %q is not a host class or a registered class", base),
		Value:  base,
	}
}

// Cycle reports an inheritance cycle among registered classes
func Cycle(class string, chain []string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindCycle,
		Class:  class,
		Detail: "inheritance cycle: " + strings.Join(chain, " -> "),
	}
}

// ReservedName reports a field whose name is reserved by the host
func ReservedName(class, field string) *Error {
	return &Error{
		Phase:  PhaseDescribe,
		Kind:   KindReservedName,
		Class:  class,
		Path:   []string{field},
		Detail: fmt.Sprintf("field name %q is reserved by the host", field),
	}
}

// NoDefault reports a generated constructor over a field without a default strategy
func NoDefault(class, field, goType string) *Error {
	return &Error{
		Phase:  PhaseDescribe,
		Kind:   KindNoDefault,
		Class:  class,
		Path:   []string{field},
		GoType: goType,
		Detail: "field has no default value; supply a constructor or mark it optional",
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// ConstructionFailed reports a factory that could not produce an instance
func ConstructionFailed(class string, cause error) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindConstructionFailed,
		Class:  class,
		Detail: "constructor did not produce an instance",
		Cause:  cause,
	}
}

// TypeMismatch creates a marshalling type mismatch error
func TypeMismatch(path []string, goType, hostType string) *Error {
	return &Error{
		Phase:    PhaseMarshal,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		HostType: hostType,
	}
}

// Overflow creates a marshalling range error
func Overflow(path []string, value any, goType string) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindOverflow,
		Path:   path,
		GoType: goType,
		Detail: fmt.Sprintf("value %v overflows %s", value, goType),
		Value:  value,
	}
}

// DispatchAbort reports an override that chose not to complete
func DispatchAbort(class, method string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindDispatchAbort,
		Class:  class,
		Path:   []string{method},
		Detail: "override aborted; treated as no-op",
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Reentrant reports a lifecycle call made from inside a dispatch
func Reentrant(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReentrant,
		Detail: what + " from inside a virtual dispatch is not supported",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// RegistrationErrors collects every registration failure found during one load
type RegistrationErrors struct {
	Errors []*Error
}

// Add appends err, flattening nested RegistrationErrors. Non-bridge errors are
// wrapped as registration failures.
func (r *RegistrationErrors) Add(err error) {
	if err == nil {
		return
	}
	var agg *RegistrationErrors
	if stderrors.As(err, &agg) {
		r.Errors = append(r.Errors, agg.Errors...)
		return
	}
	var e *Error
	if stderrors.As(err, &e) {
		r.Errors = append(r.Errors, e)
		return
	}
	r.Errors = append(r.Errors, Wrap(PhaseRegister, KindInvalidInput, err, "registration"))
}

// Len returns the number of collected errors
func (r *RegistrationErrors) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Errors)
}

// Err returns r as an error, or nil when nothing was collected
func (r *RegistrationErrors) Err() error {
	if r.Len() == 0 {
		return nil
	}
	return r
}

// Classes returns the distinct class names that failed, in report order
func (r *RegistrationErrors) Classes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.Errors {
		if e.Class == "" || seen[e.Class] {
			continue
		}
		seen[e.Class] = true
		out = append(out, e.Class)
	}
	return out
}

func (r *RegistrationErrors) Error() string {
	if len(r.Errors) == 0 {
		return "[register] no errors"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d class registration error(s):", len(r.Errors))

	// Group by class for cleaner output
	byClass := make(map[string][]*Error)
	var order []string
	for _, e := range r.Errors {
		if _, exists := byClass[e.Class]; !exists {
			order = append(order, e.Class)
		}
		byClass[e.Class] = append(byClass[e.Class], e)
	}

	for _, class := range order {
		name := class
		if name == "" {
			name = "(unnamed)"
		}
		b.WriteString("\n  ")
		b.WriteString(name)
		b.WriteByte(':')
		for _, e := range byClass[class] {
			b.WriteString("\n    - ")
			b.WriteString(e.Error())
		}
	}

	return b.String()
}

// Unwrap exposes the collected errors to errors.Is/As
func (r *RegistrationErrors) Unwrap() []error {
	out := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e
	}
	return out
}
