// Package server implements the concurrent TCP server (SV) described in
// spec.md §4.5-4.7: an accept loop with a reaped connection registry, a
// pluggable log sink (file-mode or device-mode), and a periodic timestamp
// producer in file-mode.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/gopkg/concurrency/gopool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/aesdlogd/aesdlogd/internal/chardev"
	"github.com/aesdlogd/aesdlogd/internal/constants"
	"github.com/aesdlogd/aesdlogd/internal/logging"
)

// Mode selects the log sink backend.
type Mode string

const (
	ModeFile   Mode = "file"
	ModeDevice Mode = "device"
)

// Config configures a Server.
type Config struct {
	Port         int
	Mode         Mode
	DataFilePath string
	Logger       *logging.Logger
}

// Server owns the listening socket, the connection registry, the log
// sink, and (file-mode) the timestamp producer.
type Server struct {
	cfg    Config
	logger *logging.Logger

	sink      Sink
	timestamp *TimestampProducer

	listener net.Listener
	conns    sync.Map // int64 -> *connection
	nextID   atomic.Int64

	ready chan net.Addr
}

// New constructs a Server from cfg. Opening the sink (and, in file-mode,
// the timestamp producer) happens here so startup-fatal errors (spec.md
// §7 "Resource fatal at startup") surface before ListenAndServe binds.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.DataFilePath == "" {
		cfg.DataFilePath = constants.DataFilePath
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeFile
	}

	s := &Server{cfg: cfg, logger: cfg.Logger, ready: make(chan net.Addr, 1)}

	switch cfg.Mode {
	case ModeFile:
		fileSink, err := NewFileSink(cfg.DataFilePath, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("server: create file sink: %w", err)
		}
		s.sink = fileSink
		s.timestamp = NewTimestampProducer(fileSink, cfg.Logger)
	case ModeDevice:
		s.sink = NewDeviceSink(chardev.NewDevice(cfg.Logger), cfg.Logger)
	default:
		return nil, fmt.Errorf("server: unknown mode %q", cfg.Mode)
	}

	return s, nil
}

// listenConfig binds with SO_REUSEADDR set via the socket-options control
// hook, the idiomatic Go rendition of the teacher's raw
// golang.org/x/sys/unix socket-option calls (spec.md §4.5).
var listenConfig = net.ListenConfig{
	Control: func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		})
		if err != nil {
			return err
		}
		return sockErr
	},
}

// bindWithRetry binds the listening socket, retrying with capped
// exponential backoff — the library rendition of the teacher's
// hand-rolled udev-wait-retry loop (internal/queue/runner.go) applied to
// "the port may still be held by a recently-exited process".
func bindWithRetry(ctx context.Context, port int) (net.Listener, error) {
	b := backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         2 * time.Second,
	}
	b.Reset()

	addr := fmt.Sprintf(":%d", port)
	deadline := time.Now().Add(5 * time.Second)

	for {
		ln, err := listenConfig.Listen(ctx, "tcp4", addr)
		if err == nil {
			return ln, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("server: bind %s: %w", addr, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.NextBackOff()):
		}
	}
}

// Bind acquires the listening socket, retrying with backoff (see
// bindWithRetry). It is split out from Serve so a daemonizing caller can
// bind, then fork off a child inheriting the bound fd, per spec.md §4.5
// ("bind errors surface to the foreground" even when -d is set) and
// internal/daemon's fd-handoff redesign.
func (s *Server) Bind(ctx context.Context) error {
	ln, err := bindWithRetry(ctx, s.cfg.Port)
	if err != nil {
		return err
	}
	s.listener = ln
	s.ready <- ln.Addr()
	return nil
}

// UseListener adopts an already-bound listener instead of binding one,
// used by a daemonized child process that inherited its listener's fd
// from the parent (internal/daemon.InheritedListener).
func (s *Server) UseListener(ln net.Listener) {
	s.listener = ln
	s.ready <- ln.Addr()
}

// Listener returns the bound listener, or nil before Bind/UseListener.
func (s *Server) Listener() net.Listener {
	return s.listener
}

// ListenAndServe is Bind followed by Serve, the convenience entry point
// for the common (non-daemonizing) case.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Bind(ctx); err != nil {
			return err
		}
	}
	return s.Serve(ctx)
}

// Serve starts the timestamp producer (file-mode) and runs the accept
// loop over the already-bound listener until ctx is canceled. It always
// returns a non-nil error: ErrServerClosed after a graceful shutdown, or
// the fatal accept error otherwise.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("listening", "addr", s.listener.Addr().String(), "mode", s.cfg.Mode)

	// Closing the listener on cancellation unblocks a pending Accept.
	stopClose := context.AfterFunc(ctx, func() { _ = s.listener.Close() })
	defer stopClose()

	g, gctx := errgroup.WithContext(ctx)

	if s.timestamp != nil {
		g.Go(func() error {
			s.timestamp.Run(gctx)
			return nil
		})
	}

	acceptErr := s.acceptLoop(ctx, gctx, g)

	s.shutdown(gctx)
	_ = g.Wait()

	if acceptErr != nil {
		return acceptErr
	}
	return ErrServerClosed
}

func (s *Server) acceptLoop(ctx, gctx context.Context, g *errgroup.Group) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if isTemporary(err) {
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		c := &connection{
			id:     s.nextID.Add(1),
			conn:   conn,
			logger: s.logger.WithPeer(conn.RemoteAddr().String()),
		}
		s.conns.Store(c.id, c)

		gopool.CtxGo(gctx, func() {
			c.serve(ctx, s.sink)
		})

		s.reap()

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// reap implements opportunistic reaping (spec.md §4.5): drop every
// registry entry whose worker has finished. sync.Map supports concurrent
// iteration and removal directly, the concrete improvement spec.md's
// Design Notes §9 calls for over a hand-rolled intrusive list.
func (s *Server) reap() {
	s.conns.Range(func(key, value any) bool {
		c := value.(*connection)
		if c.done.Load() {
			s.conns.Delete(key)
		}
		return true
	})
}

// shutdown implements spec.md §4.5's shutdown sequence minus the final
// data-file removal, which the caller performs after ListenAndServe
// returns (so tests can inspect it first).
func (s *Server) shutdown(gctx context.Context) {
	_ = s.listener.Close()

	s.conns.Range(func(key, value any) bool {
		c := value.(*connection)
		_ = c.conn.Close()
		return true
	})

	deadline := time.Now().Add(constants.ShutdownJoinTimeout)
	for time.Now().Before(deadline) {
		done := true
		s.conns.Range(func(key, value any) bool {
			c := value.(*connection)
			if !c.done.Load() {
				done = false
				return false
			}
			return true
		})
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.reap()
}

// Ready returns a channel that receives the bound listen address exactly
// once ListenAndServe has successfully bound. Tests use this to discover
// the OS-assigned port when Config.Port is 0.
func (s *Server) Ready() <-chan net.Addr {
	return s.ready
}

// Close releases the sink's resources (removing the data file in
// file-mode), matching spec.md §4.5 shutdown step 5. Call after
// ListenAndServe returns.
func (s *Server) Close() error {
	return s.sink.Close()
}

func isTemporary(err error) bool {
	type temporary interface{ Temporary() bool }
	te, ok := err.(temporary)
	return ok && te.Temporary()
}
