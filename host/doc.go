// Package host provides Engine, an in-memory host runtime used as the
// reference implementation of classbridge.Host. It models the parts of a
// game engine the bridge talks to: a native class tree, reference-counted
// and manually freed objects, typed properties, and default behavior for
// virtual methods. The CLI, the WASM ABI and the tests all run on it.
package host
