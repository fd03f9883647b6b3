package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"sync"

	"github.com/aesdlogd/aesdlogd/internal/chardev"
	"github.com/aesdlogd/aesdlogd/internal/logging"
)

// Sink is the log sink/replay backend (LS, spec.md §4.6): append a packet,
// then stream a reply back to the sender. FileSink and DeviceSink are the
// two interchangeable implementations spec.md §6 describes.
type Sink interface {
	Handle(ctx context.Context, conn net.Conn, packet []byte) error
	Close() error
}

// writeFull writes all of p to w, looping over short writes the way the
// source's file-mode sink retries partial writes.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// FileSink persists packets to a regular file and replays the whole file
// after each one, exactly as spec.md's file-mode sink describes. mu is the
// rendition of file_lock: it covers append-then-replay as one critical
// section, and TimestampProducer takes the same lock to append its line.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	logger *logging.Logger
}

// NewFileSink truncates (or creates) the file at path and returns a sink
// over it, per spec.md §3 "Log (file-mode)".
func NewFileSink(path string, logger *logging.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("server: open data file: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FileSink{file: f, path: path, logger: logger}, nil
}

// Handle appends packet, then replays the entire file back to conn under
// one held lock, so the replay always includes the just-appended packet
// and nothing a concurrent writer adds mid-replay (spec.md §5 ordering
// guarantee).
func (s *FileSink) Handle(ctx context.Context, conn net.Conn, packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFull(s.file, packet); err != nil {
		return fmt.Errorf("server: append packet: %w", err)
	}
	return s.replayLocked(conn)
}

// AppendTimestamp appends a pre-formatted timestamp line under the same
// lock Handle uses, giving it the same per-packet atomicity guarantee.
func (s *FileSink) AppendTimestamp(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFull(s.file, []byte(line))
}

func (s *FileSink) replayLocked(conn net.Conn) error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("server: seek for replay: %w", err)
	}

	buf := getChunk()
	defer putChunk(buf)
	for {
		n, err := s.file.Read(buf)
		if n > 0 {
			if werr := writeFull(conn, buf[:n]); werr != nil {
				return fmt.Errorf("server: replay write: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("server: replay read: %w", err)
		}
	}
}

// Close removes the data file, matching spec.md §4.5 shutdown step 5.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.file.Close()
	return os.Remove(s.path)
}

// seekCommandRe matches the device-mode seek command packet, spec.md §6:
// "AESDCHAR_IOCSEEKTO:<uint>,<uint>\n".
var seekCommandRe = regexp.MustCompile(`^AESDCHAR_IOCSEEKTO:(\d+),(\d+)\n$`)

// DeviceSink writes packets into a shared chardev.Device and replays from
// it, understanding the seek command (spec.md §4.6 "device-mode sink").
// It opens one handle per connection and holds no cross-connection lock of
// its own — mutual exclusion is the device's own lock.
type DeviceSink struct {
	dev     *chardev.Device
	logger  *logging.Logger
	handles sync.Map // net.Conn -> *chardev.Handle
}

// NewDeviceSink wraps dev as a Sink.
func NewDeviceSink(dev *chardev.Device, logger *logging.Logger) *DeviceSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &DeviceSink{dev: dev, logger: logger}
}

func (s *DeviceSink) handleFor(ctx context.Context, conn net.Conn) (*chardev.Handle, error) {
	if v, ok := s.handles.Load(conn); ok {
		return v.(*chardev.Handle), nil
	}
	h, err := s.dev.Open(ctx)
	if err != nil {
		return nil, err
	}
	actual, loaded := s.handles.LoadOrStore(conn, h)
	if loaded {
		return actual.(*chardev.Handle), nil
	}
	return h, nil
}

// Handle implements the device-mode algorithm of spec.md §4.6: parse a
// seek command (and skip the write) or write the packet verbatim, then
// stream SEND_CHUNK blocks from the device until a block contains '\n' or
// a read returns 0.
func (s *DeviceSink) Handle(ctx context.Context, conn net.Conn, packet []byte) error {
	h, err := s.handleFor(ctx, conn)
	if err != nil {
		return fmt.Errorf("server: open device handle: %w", err)
	}

	if m := seekCommandRe.FindSubmatch(packet); m != nil {
		var cmdIdx, cmdOff uint32
		if _, err := fmt.Sscanf(string(m[1]), "%d", &cmdIdx); err != nil {
			return fmt.Errorf("server: parse seek command: %w", err)
		}
		if _, err := fmt.Sscanf(string(m[2]), "%d", &cmdOff); err != nil {
			return fmt.Errorf("server: parse seek command: %w", err)
		}
		if err := h.SeekTo(ctx, cmdIdx, cmdOff); err != nil {
			s.logger.WithError(err).Warn("seek command rejected", "cmd_index", cmdIdx, "cmd_offset", cmdOff)
		}
	} else {
		if _, err := h.Write(ctx, packet); err != nil {
			return fmt.Errorf("server: device write: %w", err)
		}
	}

	return s.streamLocked(ctx, conn, h)
}

func (s *DeviceSink) streamLocked(ctx context.Context, conn net.Conn, h *chardev.Handle) error {
	buf := getChunk()
	defer putChunk(buf)
	for {
		n, err := h.Read(ctx, buf)
		if err != nil {
			return fmt.Errorf("server: device read: %w", err)
		}
		if n == 0 {
			return nil
		}
		if err := writeFull(conn, buf[:n]); err != nil {
			return fmt.Errorf("server: device replay write: %w", err)
		}
		if containsNewline(buf[:n]) {
			return nil
		}
	}
}

// ReleaseConn drops the per-connection handle, called when a connection
// worker exits.
func (s *DeviceSink) ReleaseConn(ctx context.Context, conn net.Conn) {
	if v, ok := s.handles.LoadAndDelete(conn); ok {
		_ = v.(*chardev.Handle).Release(ctx)
	}
}

// Close is a no-op: the in-process device has no backing file to remove.
func (s *DeviceSink) Close() error {
	return nil
}

func containsNewline(p []byte) bool {
	for _, c := range p {
		if c == '\n' {
			return true
		}
	}
	return false
}
