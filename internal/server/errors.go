package server

import "errors"

// Sentinel errors for the TCP server (SV/LR/LS, SPEC_FULL.md §4.5-4.7).
var (
	// ErrPacketTooLarge is returned internally when an assembled packet
	// would exceed constants.MaxPacketSize. The connection worker logs it
	// and resynchronizes on the next newline rather than propagating it.
	ErrPacketTooLarge = errors.New("server: packet exceeds maximum size")

	// ErrServerClosed is returned by ListenAndServe after a graceful
	// shutdown, mirroring net/http.Server's convention.
	ErrServerClosed = errors.New("server: closed")
)
