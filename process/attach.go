package process

import (
	"fmt"
)

// AttachCount implements reference-counted attachment. Independent callers may each
// bracket their work with Acquire/Release; only the outermost pair runs the OS hooks.
// The zero value is ready to use. It is not safe for concurrent use.
type AttachCount struct {
	n int
}

// Acquire increments the count, calling first when it goes from zero to one.
// If first fails the count is left unchanged.
func (a *AttachCount) Acquire(first func() error) error {
	if a.n == 0 && first != nil {
		if err := first(); err != nil {
			return fmt.Errorf("%w: %w", ErrAttach, err)
		}
	}
	a.n++
	return nil
}

// Release decrements the count, calling last when it reaches zero.
func (a *AttachCount) Release(last func() error) error {
	if a.n == 0 {
		return ErrNotAttached
	}
	a.n--
	if a.n == 0 && last != nil {
		return last()
	}
	return nil
}

// Held reports whether at least one attachment is outstanding.
func (a *AttachCount) Held() bool {
	return a.n > 0
}

// Depth returns the current nesting depth.
func (a *AttachCount) Depth() int {
	return a.n
}

// Reset drops every outstanding attachment without running hooks, used when the
// target has gone away and there is nothing left to detach from.
func (a *AttachCount) Reset() {
	a.n = 0
}
