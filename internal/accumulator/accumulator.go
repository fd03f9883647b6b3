// Package accumulator implements the command-framing accumulator (CA):
// it buffers incoming bytes until a newline, then hands a finalized,
// ring-ready entry to its caller.
package accumulator

import (
	"errors"

	"github.com/aesdlogd/aesdlogd/internal/constants"
	"github.com/aesdlogd/aesdlogd/internal/ring"
)

// ErrOutOfMemory is returned when a command would exceed
// constants.MaxCommandSize. It is the Go rendition of the source's
// malloc-failure abort: the write is aborted, but any commands already
// finalized earlier in the same call remain committed.
var ErrOutOfMemory = errors.New("accumulator: command exceeds maximum size")

// Accumulator buffers a single in-progress command until it is finalized
// by a trailing newline. It has no lock of its own; chardev.Device
// serializes access the same way it serializes ring.Buffer access.
type Accumulator struct {
	partial []byte
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Len reports the number of bytes currently pending (not yet finalized).
func (a *Accumulator) Len() int {
	return len(a.partial)
}

// Pending returns the bytes buffered so far for the in-progress command.
// Callers must not mutate the result.
func (a *Accumulator) Pending() []byte {
	return a.partial
}

// Append grows the pending command by p. It fails with ErrOutOfMemory if
// the result would exceed constants.MaxCommandSize; the accumulator is
// left unchanged on failure.
func (a *Accumulator) Append(p []byte) error {
	if len(a.partial)+len(p) > constants.MaxCommandSize {
		return ErrOutOfMemory
	}
	a.partial = append(a.partial, p...)
	return nil
}

// Finalize transfers ownership of the pending bytes into a new ring.Entry,
// resetting the pending buffer. It is a no-op (returns nil) when nothing
// is pending.
func (a *Accumulator) Finalize() *ring.Entry {
	if len(a.partial) == 0 {
		return nil
	}
	entry := ring.NewEntry(a.partial)
	a.partial = nil
	return entry
}

// Feed implements the write-side framing algorithm (SPEC_FULL.md §4.2,
// spec.md §4.2): for every '\n' found in data, the bytes up to and
// including it are appended and finalized into an entry; any tail after
// the last newline remains pending. It returns the entries finalized
// during this call, in order.
//
// On ErrOutOfMemory, entries already finalized earlier in this call are
// returned alongside the error — partial progress is not rolled back,
// matching intuitive byte-stream write semantics.
func (a *Accumulator) Feed(data []byte) ([]*ring.Entry, error) {
	var entries []*ring.Entry

	start := 0
	for i, c := range data {
		if c != '\n' {
			continue
		}
		if err := a.Append(data[start : i+1]); err != nil {
			return entries, err
		}
		if e := a.Finalize(); e != nil {
			entries = append(entries, e)
		}
		start = i + 1
	}

	if start < len(data) {
		if err := a.Append(data[start:]); err != nil {
			return entries, err
		}
	}

	return entries, nil
}

// DiscardPending drops all buffered bytes without finalizing them, so a
// caller can resynchronize on the next frame boundary after dropping an
// oversized command. The server's connection worker does not call it: it
// resynchronizes its own assembly buffer (SPEC_FULL.md §4.6).
func (a *Accumulator) DiscardPending() {
	a.partial = nil
}
