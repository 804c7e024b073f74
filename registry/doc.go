// Package registry holds the class registration table.
//
// Registration and lookup never overlap: classes are registered while the
// library loads, Seal validates them against the host's class tree and
// publishes an immutable snapshot, and from then on Lookup is a lock-free
// atomic load. Seal drops classes whose base cannot be resolved, together
// with every class that extends them, and reports them all at once.
package registry
