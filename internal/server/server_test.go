package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aesdlogd/aesdlogd/internal/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.NewLogger(&logging.Config{Level: logging.LevelError, Output: io.Discard})
}

// startServer launches s.ListenAndServe in the background and returns the
// bound address once ready, along with a cancel func and a done channel
// carrying ListenAndServe's return value.
func startServer(t *testing.T, s *Server) (addr string, cancel context.CancelFunc, done chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	done = make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx)
	}()

	select {
	case a := <-s.Ready():
		addr = a.String()
	case <-time.After(2 * time.Second):
		t.Fatal("server did not become ready")
	}
	return addr, cancelFn, done
}

// TestFileMode_S5ReplayMonotonicity covers invariant 6 and scenario S5:
// two clients send one packet each; each client's reply is a prefix-
// consistent view of the shared log.
func TestFileMode_S5ReplayMonotonicity(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "aesdsocketdata")
	s, err := New(Config{Mode: ModeFile, DataFilePath: dataFile, Logger: testLogger(t)})
	require.NoError(t, err)

	addr, cancel, done := startServer(t, s)
	defer func() {
		cancel()
		<-done
		_ = s.Close()
	}()

	var wg sync.WaitGroup
	replies := make([]string, 2)
	packets := []string{"A\n", "B\n"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			require.NoError(t, err)
			defer conn.Close()

			_, err = conn.Write([]byte(packets[i]))
			require.NoError(t, err)

			conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			buf := make([]byte, 4096)
			n, _ := conn.Read(buf)
			replies[i] = string(buf[:n])
		}(i)
	}
	wg.Wait()

	for _, r := range replies {
		assert.True(t, r == "A\n" || r == "A\nB\n" || r == "B\n" || r == "B\nA\n",
			"unexpected reply %q", r)
	}

	// Final state: a fresh connection sees both packets in some order.
	finalConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer finalConn.Close()
	_, err = finalConn.Write([]byte("C\n"))
	require.NoError(t, err)
	finalConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	reader := bufio.NewReader(finalConn)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines = append(lines, strings.TrimSuffix(line, "\n"))
		}
		if err != nil {
			break
		}
	}
	assert.Contains(t, lines, "A")
	assert.Contains(t, lines, "B")
	assert.Contains(t, lines, "C")
}

// TestFileMode_S6Shutdown covers scenario S6: SIGTERM-equivalent context
// cancellation while a client holds an idle connection causes the
// client's read to observe EOF and the data file to be removed.
func TestFileMode_S6Shutdown(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "aesdsocketdata")
	s, err := New(Config{Mode: ModeFile, DataFilePath: dataFile, Logger: testLogger(t)})
	require.NoError(t, err)

	addr, cancel, done := startServer(t, s)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(3 * time.Second):
		t.Fatal("ListenAndServe did not return after cancellation")
	}
	require.NoError(t, s.Close())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)

	_, statErr := os.Stat(dataFile)
	assert.True(t, os.IsNotExist(statErr), "data file should be removed on shutdown")
}

// TestFileMode_S7PerPacketAtomicity covers invariant 7: concurrent
// writers never interleave a single packet's bytes.
func TestFileMode_S7PerPacketAtomicity(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "aesdsocketdata")
	s, err := New(Config{Mode: ModeFile, DataFilePath: dataFile, Logger: testLogger(t)})
	require.NoError(t, err)

	addr, cancel, done := startServer(t, s)
	defer func() {
		cancel()
		<-done
		_ = s.Close()
	}()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			require.NoError(t, err)
			defer conn.Close()

			packet := fmt.Sprintf("client-%d-payload-012345678\n", i)
			_, err = conn.Write([]byte(packet))
			require.NoError(t, err)

			conn.SetReadDeadline(time.Now().Add(time.Second))
			_, _ = io.Copy(io.Discard, io.LimitReader(conn, 1<<20))
		}(i)
	}
	wg.Wait()

	raw, err := os.ReadFile(dataFile)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		if line == "" {
			continue
		}
		assert.True(t, strings.HasPrefix(line, "client-"), "interleaved line: %q", line)
		seen[line] = true
	}
	assert.Len(t, seen, writers)
}
