package connection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/apperr"
	"github.com/osa030/guildbox/internal/app/voice"
)

// Config holds connection timing.
type Config struct {
	AttemptTimeout time.Duration // Bound on a single join
	OverallTimeout time.Duration // Bound on a whole attempt including deafen and settle
	MaxAttempts    int
	Backoff        time.Duration
	SwitchSettle   time.Duration // Wait after tearing down a connection to another channel
	ReadySettle    time.Duration // Wait after deafening before the handle is ready
}

// DefaultConfig returns the standard connection timing.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 10 * time.Second,
		OverallTimeout: 15 * time.Second,
		MaxAttempts:    3,
		Backoff:        time.Second,
		SwitchSettle:   500 * time.Millisecond,
		ReadySettle:    time.Second,
	}
}

// Manager owns the voice connection of every room.
// Connect and Disconnect for the same room are serialized.
type Manager struct {
	transport voice.Transport
	cfg       Config
	sleep     SleepFunc

	mu      sync.Mutex
	handles map[string]*Handle
	states  map[string]State
	locks   map[string]*sync.Mutex
}

// NewManager creates a new connection manager.
func NewManager(transport voice.Transport, cfg Config) *Manager {
	return &Manager{
		transport: transport,
		cfg:       cfg,
		sleep:     Sleep,
		handles:   make(map[string]*Handle),
		states:    make(map[string]State),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (m *Manager) roomLock(roomID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[roomID] = l
	}
	return l
}

func (m *Manager) setState(roomID string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == StateDisconnected {
		delete(m.states, roomID)
		return
	}
	m.states[roomID] = s
}

// Connect joins channelID in roomID and returns a ready handle.
// An existing handle on the same channel is returned as is; one on another
// channel is torn down first.
func (m *Manager) Connect(ctx context.Context, roomID, channelID string) (*Handle, error) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	if h, ok := m.Handle(roomID); ok {
		if h.ChannelID() == channelID {
			return h, nil
		}
		zlog.Info().Msgf("connection: switching channel: room=%s from=%s to=%s", roomID, h.ChannelID(), channelID)
		m.teardown(ctx, roomID, h)
		if err := m.sleep(ctx, m.cfg.SwitchSettle); err != nil {
			return nil, apperr.Connection(err, "connect room %s", roomID)
		}
	}

	m.setState(roomID, StateConnecting)
	var handle *Handle
	err := Retry(ctx, Policy{MaxAttempts: m.cfg.MaxAttempts, Backoff: m.cfg.Backoff}, m.sleep,
		func(ctx context.Context, attempt int) error {
			h, err := m.attempt(ctx, roomID, channelID)
			if err != nil {
				return err
			}
			handle = h
			return nil
		})
	if err != nil {
		m.setState(roomID, StateDisconnected)
		zlog.Error().Err(err).Msgf("connection: failed to connect: room=%s channel=%s", roomID, channelID)
		return nil, apperr.Connection(err, "connect room %s channel %s", roomID, channelID)
	}

	m.mu.Lock()
	m.handles[roomID] = handle
	m.states[roomID] = StateConnected
	m.mu.Unlock()

	zlog.Info().Msgf("connection: connected: room=%s channel=%s", roomID, channelID)
	return handle, nil
}

// attempt performs one bounded join, deafen and settle.
// A partially established session is disconnected before returning an error.
func (m *Manager) attempt(ctx context.Context, roomID, channelID string) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.OverallTimeout)
	defer cancel()

	joinCtx, joinCancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
	conn, err := m.transport.Join(joinCtx, roomID, channelID)
	joinCancel()
	if err != nil {
		return nil, errors.Wrap(err, "join")
	}

	if err := conn.Deafen(ctx); err != nil {
		m.cleanup(roomID, conn)
		return nil, errors.Wrap(err, "deafen")
	}
	if err := m.sleep(ctx, m.cfg.ReadySettle); err != nil {
		m.cleanup(roomID, conn)
		return nil, errors.Wrap(err, "settle")
	}
	return newHandle(roomID, channelID, conn), nil
}

func (m *Manager) cleanup(roomID string, conn voice.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.AttemptTimeout)
	defer cancel()
	if err := conn.Disconnect(ctx); err != nil {
		zlog.Debug().Err(err).Msgf("connection: cleanup of partial session failed: room=%s", roomID)
	}
}

// teardown removes the handle and disconnects it, swallowing errors.
// Caller holds the room lock.
func (m *Manager) teardown(ctx context.Context, roomID string, h *Handle) {
	m.mu.Lock()
	if cur, ok := m.handles[roomID]; ok && cur == h {
		delete(m.handles, roomID)
	}
	delete(m.states, roomID)
	m.mu.Unlock()

	h.SetStatus(voice.StatusIdle)
	if err := h.Conn().Disconnect(ctx); err != nil {
		zlog.Warn().Err(err).Msgf("connection: disconnect failed, handle released: room=%s", roomID)
	}
}

// Disconnect releases the room's connection. Returns false if there was none.
func (m *Manager) Disconnect(ctx context.Context, roomID string) bool {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	h, ok := m.Handle(roomID)
	if !ok {
		return false
	}
	m.teardown(ctx, roomID, h)
	zlog.Info().Msgf("connection: disconnected: room=%s", roomID)
	return true
}

// Forget drops the handle of a session the platform already closed.
func (m *Manager) Forget(roomID string) {
	m.mu.Lock()
	h, ok := m.handles[roomID]
	delete(m.handles, roomID)
	delete(m.states, roomID)
	m.mu.Unlock()

	if ok {
		h.SetStatus(voice.StatusIdle)
		zlog.Info().Msgf("connection: forgot handle: room=%s channel=%s", roomID, h.ChannelID())
	}
}

// Handle returns the room's handle.
func (m *Manager) Handle(roomID string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[roomID]
	return h, ok
}

// IsConnected reports whether the room has a handle.
func (m *Manager) IsConnected(roomID string) bool {
	_, ok := m.Handle(roomID)
	return ok
}

// CurrentChannel returns the room's joined channel.
func (m *Manager) CurrentChannel(roomID string) (string, bool) {
	h, ok := m.Handle(roomID)
	if !ok {
		return "", false
	}
	return h.ChannelID(), true
}

// State returns the connection state of the room.
func (m *Manager) State(roomID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[roomID]
}

// Rooms returns the connected room IDs in sorted order.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DisconnectAll releases every connection.
func (m *Manager) DisconnectAll(ctx context.Context) {
	for _, id := range m.Rooms() {
		m.Disconnect(ctx, id)
	}
}
