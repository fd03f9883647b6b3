package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures every packet handed to it and echoes it back.
type recordingSink struct {
	mu      sync.Mutex
	packets [][]byte
}

func (s *recordingSink) Handle(ctx context.Context, conn net.Conn, packet []byte) error {
	s.mu.Lock()
	cp := append([]byte(nil), packet...)
	s.packets = append(s.packets, cp)
	s.mu.Unlock()
	_, err := conn.Write(packet)
	return err
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.packets))
	copy(out, s.packets)
	return out
}

func TestConnection_FramesOnNewline(t *testing.T) {
	server, client := net.Pipe()
	sink := &recordingSink{}
	c := &connection{id: 1, conn: server, logger: testLogger(t)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.serve(ctx, sink)

	_, err := client.Write([]byte("hel"))
	require.NoError(t, err)
	_, err = client.Write([]byte("lo\nworld\n"))
	require.NoError(t, err)

	buf := make([]byte, 12)
	for n := 0; n < len(buf); {
		client.SetReadDeadline(time.Now().Add(time.Second))
		m, err := client.Read(buf[n:])
		require.NoError(t, err)
		n += m
	}
	assert.Equal(t, "hello\nworld\n", string(buf))

	packets := sink.snapshot()
	require.Len(t, packets, 2)
	assert.Equal(t, "hello\n", string(packets[0]))
	assert.Equal(t, "world\n", string(packets[1]))

	client.Close()
}

func TestConnection_OversizedPacketResyncs(t *testing.T) {
	server, client := net.Pipe()
	sink := &recordingSink{}
	c := &connection{id: 1, conn: server, logger: testLogger(t)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.serve(ctx, sink)

	const oversizedLen = 1 << 21
	big := make([]byte, oversizedLen)
	for i := range big {
		big[i] = 'x'
	}
	big = append(big, '\n')

	go func() {
		_, _ = client.Write(big)
		_, _ = client.Write([]byte("ok\n"))
	}()

	buf := make([]byte, 3)
	for n := 0; n < len(buf); {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		m, err := client.Read(buf[n:])
		require.NoError(t, err)
		n += m
	}
	assert.Equal(t, "ok\n", string(buf))

	packets := sink.snapshot()
	require.Len(t, packets, 1)
	assert.Equal(t, "ok\n", string(packets[0]))

	client.Close()
}
