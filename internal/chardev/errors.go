package chardev

import "errors"

// Sentinel errors for the device interface (DI, SPEC_FULL.md §4.3/§7).
//
// The teacher's errors.go uses a richer *Error{Op, DevID, Queue, Code}
// struct because a single process there juggles many devices and queues.
// aesdlogd has exactly one device instance per Device value and no queue
// concept, so plain sentinel errors (wrapped with fmt.Errorf where a
// call site wants to add context) are the simpler, equally idiomatic
// rendition — the extra fields would never be populated.
var (
	// ErrInvalidArgument is returned for out-of-range seek parameters.
	ErrInvalidArgument = errors.New("chardev: invalid argument")

	// ErrOutOfMemory is returned when a write would exceed the configured
	// command size guard (accumulator.ErrOutOfMemory rendition).
	ErrOutOfMemory = errors.New("chardev: out of memory")

	// ErrInterrupted is returned when the caller's context is canceled
	// while waiting to acquire the device lock, without mutating state.
	ErrInterrupted = errors.New("chardev: interrupted")

	// ErrFault is reserved for copy-to-caller failures. Go's copy() cannot
	// partially fail the way a user-copy fault can in C, so this is never
	// returned today; it documents the spec's fault path for parity with
	// SPEC_FULL.md §7.
	ErrFault = errors.New("chardev: fault")
)
