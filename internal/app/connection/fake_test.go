package connection

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/guildbox/internal/app/voice"
)

// mockTransport fails the first failures joins, then succeeds.
type mockTransport struct {
	mu       sync.Mutex
	failures int
	joins    int
	conns    []*mockConn
	block    bool
}

func (t *mockTransport) Join(ctx context.Context, roomID, channelID string) (voice.Conn, error) {
	t.mu.Lock()
	t.joins++
	n := t.joins
	block := t.block
	t.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= t.failures {
		return nil, errors.Newf("join failed (attempt %d)", n)
	}

	c := &mockConn{channelID: channelID}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *mockTransport) joinCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.joins
}

type mockConn struct {
	mu           sync.Mutex
	channelID    string
	deafened     bool
	disconnected bool
	deafenErr    error
	leaveErr     error
}

func (c *mockConn) ChannelID() string { return c.channelID }

func (c *mockConn) Deafen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deafenErr != nil {
		return c.deafenErr
	}
	c.deafened = true
	return nil
}

func (c *mockConn) Play(mediaURL string, onDone func(error)) (voice.Source, error) {
	return nil, errors.New("not supported")
}

func (c *mockConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return c.leaveErr
}

func (c *mockConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

func newTestManager(t voice.Transport) (*Manager, *recordingSleep) {
	rs := &recordingSleep{}
	m := NewManager(t, DefaultConfig())
	m.sleep = rs.sleep
	return m, rs
}
