package constants

import "time"

// Ring buffer / command log constants
const (
	// RingCapacity is the fixed number of command entries retained in the
	// log before the oldest is evicted.
	RingCapacity = 10
)

// Network/connection constants
const (
	// DefaultPort is the TCP port the server listens on.
	DefaultPort = 9000

	// ListenBacklog is the listen(2) backlog of the original C server. The
	// server does not apply it: it listens through net.ListenConfig, which
	// uses the system's default backlog.
	ListenBacklog = 10

	// RecvChunk is the read buffer size used per recv() call.
	RecvChunk = 4096

	// SendChunk is the write buffer size used per replay send() call.
	SendChunk = 4096

	// AssemblyInitialCapacity is the initial capacity of a connection's
	// line-assembly buffer; it doubles on growth.
	AssemblyInitialCapacity = 1024
)

// Size guards standing in for the C source's malloc-failure paths (see
// SPEC_FULL.md §4.2.1): Go's allocator does not expose allocation failure
// the way C's does, so these caps are the deliberate rendition of "abort
// this command/packet and resynchronize". They are package vars, not
// consts, so cmd/aesdsocket's --max-command-size flag and tests can lower
// them to exercise the abort path without allocating a real 1MiB buffer.
var (
	// MaxCommandSize bounds a single committed ring entry.
	MaxCommandSize = 1 << 20

	// MaxPacketSize bounds a single connection's in-flight assembly buffer.
	MaxPacketSize = 1 << 20
)

// Timestamp producer constants
const (
	// TimestampPeriod is how often the timestamp worker appends a line.
	TimestampPeriod = 10 * time.Second

	// TimestampPollInterval is how often the timestamp worker checks for
	// cancellation while waiting out TimestampPeriod.
	TimestampPollInterval = 1 * time.Second

	// TimestampLayout renders the Go equivalent of C's
	// "%a, %d %b %Y %H:%M:%S %z" in local time.
	TimestampLayout = "Mon, 02 Jan 2006 15:04:05 -0700"
)

// DataFilePath is the default file-mode log path.
const DataFilePath = "/var/tmp/aesdsocketdata"

// Shutdown timing
const (
	// ShutdownJoinTimeout bounds how long graceful shutdown waits for
	// in-flight connection workers to finish; once it passes, shutdown
	// stops waiting and returns.
	ShutdownJoinTimeout = 2 * time.Second
)
