// Package revert provides a small helper for unwinding a sequence of
// already-applied side effects when a later step in the sequence
// fails. It mirrors the teacher daemon's shared/revert package, used
// throughout its storage drivers for the same "undo what we already
// did" shape that the CPU driver's multi-file activate needs (spec
// §4.4: "On failure partway, it rolls back already-written files to
// the previously activated profile").
package revert

// Hook is cleanup to run on failure.
type Hook func()

// Reverter accumulates hooks and runs them in LIFO order unless
// Success is called first.
type Reverter struct {
	hooks []Hook
}

// New returns an empty Reverter.
func New() *Reverter {
	return &Reverter{}
}

// Add appends a hook to be run on Fail, in reverse order of addition.
func (r *Reverter) Add(h Hook) {
	r.hooks = append(r.hooks, h)
}

// Fail runs all accumulated hooks, most recently added first. Safe to
// call via defer even after Success; it is then a no-op.
func (r *Reverter) Fail() {
	for i := len(r.hooks) - 1; i >= 0; i-- {
		r.hooks[i]()
	}

	r.hooks = nil
}

// Success discards the accumulated hooks so a deferred Fail becomes a
// no-op.
func (r *Reverter) Success() {
	r.hooks = nil
}
