// Package chardev renders AESDCHAR's device interface (DI) as an
// in-process Go type: the open/read/write/llseek/ioctl surface spec.md §4.3
// describes for /dev/aesdchar, backed by a ring.Buffer and an
// accumulator.Accumulator under one interruptible lock (see SPEC_FULL.md
// §1's rendition note).
package chardev

import (
	"context"
	"io"

	"github.com/aesdlogd/aesdlogd/internal/accumulator"
	"github.com/aesdlogd/aesdlogd/internal/logging"
	"github.com/aesdlogd/aesdlogd/internal/ring"
)

// Device owns the single command log shared by every Handle opened against
// it. There is no per-open device state beyond a Handle's own read
// position, matching spec.md's "no per-open state" contract for open().
type Device struct {
	mu     *ctxMutex
	ring   *ring.Buffer
	acc    *accumulator.Accumulator
	logger *logging.Logger
}

// NewDevice returns an empty device. A nil logger uses logging.Default().
func NewDevice(logger *logging.Logger) *Device {
	if logger == nil {
		logger = logging.Default()
	}
	return &Device{
		mu:     newCtxMutex(),
		ring:   ring.New(),
		acc:    accumulator.New(),
		logger: logger,
	}
}

// Handle is a bound, per-open file position over a Device, the rendition
// of the kernel's per-open struct file::f_pos.
type Handle struct {
	dev *Device
	pos int64
}

// Open binds the caller to the device and returns a fresh Handle at
// position 0.
func (d *Device) Open(ctx context.Context) (*Handle, error) {
	if err := d.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	return &Handle{dev: d}, nil
}

// Release is a no-op, matching spec.md's release() contract.
func (h *Handle) Release(ctx context.Context) error {
	return nil
}

// Read copies up to len(p) bytes starting at the handle's current position
// and advances that position by the number of bytes copied. It returns 0
// once the position is at or past the device's total log size.
func (h *Handle) Read(ctx context.Context, p []byte) (int, error) {
	if err := h.dev.mu.Lock(ctx); err != nil {
		return 0, err
	}
	defer h.dev.mu.Unlock()

	n := h.dev.ring.ReadAt(p, int(h.pos))
	h.pos += int64(n)
	return n, nil
}

// Write frames p into one or more committed log entries (see
// accumulator.Accumulator.Feed) and ignores the handle's read position —
// the log is append-only. It returns the number of bytes consumed on
// success; on ErrOutOfMemory, commands already committed earlier in this
// call remain committed per SPEC_FULL.md §4.2.
func (h *Handle) Write(ctx context.Context, p []byte) (int, error) {
	if err := h.dev.mu.Lock(ctx); err != nil {
		return 0, err
	}
	defer h.dev.mu.Unlock()

	entries, err := h.dev.acc.Feed(p)
	for _, e := range entries {
		h.dev.ring.Add(e)
	}
	if err != nil {
		return 0, ErrOutOfMemory
	}
	return len(p), nil
}

// Llseek computes a new absolute position from off and whence using the
// device's current total log size as the logical size, per spec.md's
// llseek contract. whence is one of io.SeekStart/SeekCurrent/SeekEnd.
func (h *Handle) Llseek(ctx context.Context, off int64, whence int) (int64, error) {
	if err := h.dev.mu.Lock(ctx); err != nil {
		return 0, err
	}
	defer h.dev.mu.Unlock()

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = off
	case io.SeekCurrent:
		newPos = h.pos + off
	case io.SeekEnd:
		newPos = int64(h.dev.ring.TotalSize()) + off
	default:
		return h.pos, ErrInvalidArgument
	}
	if newPos < 0 {
		return h.pos, ErrInvalidArgument
	}

	h.pos = newPos
	return newPos, nil
}

// Pos returns the handle's current read position (test/diagnostic use).
func (h *Handle) Pos() int64 {
	return h.pos
}
