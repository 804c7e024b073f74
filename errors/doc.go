// Package errors provides structured error types for the class bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the class and field path involved, the Go and host type
// names for marshalling failures, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindOverflow).
//		Class("Monster").
//		Path("hitpoints").
//		GoType("uint8").
//		HostType("int").
//		Detail("300 does not fit").
//		Build()
//
// Or use convenience constructors for the bridge taxonomy:
//
//	err := errors.DuplicateClass("Monster")
//	err := errors.UnknownBase("Boss", "Monstr")
//	err := errors.ConstructionFailed("Monster", cause)
//
// Registration errors are never reported one at a time: the registry collects
// them into a RegistrationErrors value that is returned once at load time.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
