package chardev

import "context"

// SeekTo implements the AESDCHAR_IOCSEEKTO ioctl (SP, spec.md §4.4): it
// sets the handle's position to byte cmdOffset within the cmdIndex-th
// currently present command, counted from the oldest. It fails with
// ErrInvalidArgument when cmdIndex is out of range or cmdOffset is at or
// past that command's size, and mutates nothing on failure.
func (h *Handle) SeekTo(ctx context.Context, cmdIndex, cmdOffset uint32) error {
	if err := h.dev.mu.Lock(ctx); err != nil {
		return err
	}
	defer h.dev.mu.Unlock()

	k := h.dev.ring.Count()
	if int(cmdIndex) >= k {
		return ErrInvalidArgument
	}

	entry, ok := h.dev.ring.NthFromOldest(int(cmdIndex))
	if !ok || int(cmdOffset) >= entry.Size() {
		return ErrInvalidArgument
	}

	h.pos = int64(h.dev.ring.OffsetOfNth(int(cmdIndex))) + int64(cmdOffset)
	return nil
}

// Ioctl dispatches on op, the way a real character device's unlocked_ioctl
// would switch on cmd. Only AESDCHAR_IOCSEEKTO is defined today.
func (h *Handle) Ioctl(ctx context.Context, op IoctlOp, arg *SeekArg) error {
	switch op {
	case IoctlSeekTo:
		if arg == nil {
			return ErrInvalidArgument
		}
		return h.SeekTo(ctx, arg.WriteCmd, arg.WriteCmdOffset)
	default:
		return ErrInvalidArgument
	}
}
