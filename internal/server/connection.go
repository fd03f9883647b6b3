package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/aesdlogd/aesdlogd/internal/constants"
	"github.com/aesdlogd/aesdlogd/internal/logging"
)

// connection is the per-accepted-socket worker state (spec.md §3
// "Connection state"). It is created on accept and destroyed once its
// worker goroutine returns and the accept loop (or shutdown) reaps it.
type connection struct {
	id     int64
	conn   net.Conn
	logger *logging.Logger
	done   atomic.Bool
}

// releaser is implemented by sinks that hold per-connection state needing
// explicit teardown (DeviceSink); FileSink needs none.
type releaser interface {
	ReleaseConn(ctx context.Context, conn net.Conn)
}

// serve runs the line reassembler (LR) over c's socket: read up to
// RECV_CHUNK bytes at a time, grow a doubling assembly buffer, and hand
// each complete packet (the bytes through a '\n') to sink.Handle. It
// returns once the connection is closed or ctx is canceled.
func (c *connection) serve(ctx context.Context, sink Sink) {
	defer c.done.Store(true)
	defer func() {
		if r, ok := sink.(releaser); ok {
			r.ReleaseConn(context.Background(), c.conn)
		}
	}()
	defer c.conn.Close()

	c.logger.Info("accepted connection")

	assembly := make([]byte, 0, constants.AssemblyInitialCapacity)
	recvBuf := getChunk()
	defer putChunk(recvBuf)

	// discarding is set once the in-progress packet has exceeded
	// MaxPacketSize without a newline; while it is set, the bytes up to
	// and including the next newline are dropped as the tail of that
	// oversized packet, so the tail is never handed to the sink as a
	// packet of its own.
	discarding := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := c.conn.Read(recvBuf)
		if n > 0 {
			if need := len(assembly) + n; need > cap(assembly) {
				newCap := 2 * cap(assembly)
				if newCap < constants.AssemblyInitialCapacity {
					newCap = constants.AssemblyInitialCapacity
				}
				for newCap < need {
					newCap *= 2
				}
				grown := make([]byte, len(assembly), newCap)
				copy(grown, assembly)
				assembly = grown
			}
			assembly = append(assembly, recvBuf[:n]...)

			for {
				idx := bytes.IndexByte(assembly, '\n')
				if idx < 0 {
					break
				}
				packet := assembly[:idx+1]
				assembly = assembly[idx+1:]

				if discarding {
					discarding = false
					continue
				}
				if len(packet) > constants.MaxPacketSize {
					c.logger.WithError(ErrPacketTooLarge).Warn("dropping oversized packet", "size", len(packet))
					continue
				}
				if herr := sink.Handle(ctx, c.conn, packet); herr != nil {
					c.logger.WithError(herr).Warn("sink handling failed, closing connection")
					return
				}
			}

			if !discarding && len(assembly) > constants.MaxPacketSize {
				c.logger.WithError(ErrPacketTooLarge).Warn("dropping oversized packet", "size", len(assembly))
				assembly = assembly[:0]
				discarding = true
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.logger.Info("closed connection")
				return
			}
			c.logger.WithError(err).Warn("connection read failed")
			return
		}
	}
}
