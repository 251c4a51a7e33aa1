package application

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"shardhub/collab/domain"

	"github.com/stretchr/testify/require"
)

// memBlobs é um BlobStore em memória com falha de escrita controlável.
type memBlobs struct {
	mu      sync.Mutex
	data    map[domain.ShardKey][]byte
	failPut error
	failGet error
	puts    int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[domain.ShardKey][]byte)}
}

func (m *memBlobs) Get(_ context.Context, key domain.ShardKey) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memBlobs) Put(_ context.Context, key domain.ShardKey, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failPut != nil {
		return m.failPut
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memBlobs) Close() error { return nil }

func (m *memBlobs) setFailPut(err error) {
	m.mu.Lock()
	m.failPut = err
	m.mu.Unlock()
}

func (m *memBlobs) raw(key domain.ShardKey) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// fakeConn simula um WebSocket: `in` alimenta ReadMessage, `out` recebe o que
// a sessão escreve.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	select {
	case c.out <- append([]byte(nil), data...):
		return nil
	case <-c.closed:
		return errors.New("write on closed conn")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

const waitFor = time.Second

func recvOut(t *testing.T, c *fakeConn) []byte {
	t.Helper()
	select {
	case m := <-c.out:
		return m
	case <-time.After(waitFor):
		t.Fatalf("timeout waiting for frame")
		return nil
	}
}

func noOut(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case m := <-c.out:
		t.Fatalf("unexpected frame: %s", m)
	case <-time.After(50 * time.Millisecond):
	}
}

// recvQueued lê direto da fila da sessão (sem goroutine de escrita).
func recvQueued(t *testing.T, s *Session) []byte {
	t.Helper()
	select {
	case m := <-s.send:
		return m
	default:
		t.Fatalf("expected a queued frame for session %s", s.ID)
		return nil
	}
}

func noQueued(t *testing.T, s *Session) {
	t.Helper()
	select {
	case m := <-s.send:
		t.Fatalf("unexpected queued frame for session %s: %s", s.ID, m)
	default:
	}
}

func connect(t *testing.T, a *Actor, id string) *Session {
	t.Helper()
	s := NewSession(id, newFakeConn(), 8)
	require.NoError(t, a.HandleConnect(context.Background(), s))
	return s
}
