// Package idle leaves voice channels that nobody is listening in.
package idle

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/voice"
)

// Connections lists connected rooms.
type Connections interface {
	Rooms() []string
	CurrentChannel(roomID string) (string, bool)
}

// Teardown stops playback, clears state and disconnects a room.
type Teardown interface {
	Teardown(ctx context.Context, roomID string) error
}

// Notifier is told when a room is left for inactivity.
type Notifier interface {
	IdleDisconnect(roomID string)
}

// Config holds idle monitor timing.
type Config struct {
	Interval time.Duration // Time between sweeps
	Window   time.Duration // Observation window before teardown
}

// Monitor periodically checks connected rooms for listeners.
type Monitor struct {
	cfg      Config
	conns    Connections
	presence voice.Presence
	teardown Teardown
	notifier Notifier

	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
}

// NewMonitor creates a new idle monitor.
func NewMonitor(cfg Config, conns Connections, presence voice.Presence, teardown Teardown, notifier Notifier) *Monitor {
	return &Monitor{
		cfg:      cfg,
		conns:    conns,
		presence: presence,
		teardown: teardown,
		notifier: notifier,
		pending:  make(map[string]struct{}),
	}
}

// Run sweeps every interval until ctx is done, then waits for pending observations.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	zlog.Info().Msgf("idle: monitor started: interval=%s window=%s", m.cfg.Interval, m.cfg.Window)
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			zlog.Info().Msg("idle: monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep checks every connected room once. Empty rooms are observed on their
// own goroutine so one room's window does not delay the others.
func (m *Monitor) Sweep(ctx context.Context) {
	for _, roomID := range m.conns.Rooms() {
		channelID, ok := m.conns.CurrentChannel(roomID)
		if !ok {
			continue
		}
		if !m.isEmpty(roomID, channelID) {
			continue
		}
		if !m.markPending(roomID) {
			continue
		}

		zlog.Debug().Msgf("idle: channel empty, observing: room=%s channel=%s", roomID, channelID)
		m.wg.Add(1)
		go func(roomID, channelID string) {
			defer m.wg.Done()
			defer m.unmarkPending(roomID)
			m.observe(ctx, roomID, channelID)
		}(roomID, channelID)
	}
}

// observe waits the window and tears the room down if it is still empty.
func (m *Monitor) observe(ctx context.Context, roomID, channelID string) {
	timer := time.NewTimer(m.cfg.Window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	current, ok := m.conns.CurrentChannel(roomID)
	if !ok || current != channelID {
		zlog.Debug().Msgf("idle: room changed during window, skipping: room=%s", roomID)
		return
	}
	if !m.isEmpty(roomID, channelID) {
		zlog.Debug().Msgf("idle: listener joined, keeping connection: room=%s", roomID)
		return
	}

	zlog.Info().Msgf("idle: leaving empty channel: room=%s channel=%s", roomID, channelID)
	m.notifier.IdleDisconnect(roomID)
	if err := m.teardown.Teardown(ctx, roomID); err != nil {
		zlog.Warn().Err(err).Msgf("idle: teardown failed: room=%s", roomID)
	}
}

// isEmpty reports whether no human is in the channel. Lookup errors count as
// occupied so a flaky cache never causes a disconnect.
func (m *Monitor) isEmpty(roomID, channelID string) bool {
	n, err := m.presence.HumanCount(roomID, channelID)
	if err != nil {
		zlog.Warn().Err(err).Msgf("idle: membership lookup failed: room=%s channel=%s", roomID, channelID)
		return false
	}
	return n == 0
}

func (m *Monitor) markPending(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[roomID]; ok {
		return false
	}
	m.pending[roomID] = struct{}{}
	return true
}

func (m *Monitor) unmarkPending(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, roomID)
}
