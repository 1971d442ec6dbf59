package connection

import (
	"sync"
	"time"

	"github.com/osa030/guildbox/internal/app/voice"
)

// Handle is a live voice connection for one room.
type Handle struct {
	roomID      string
	channelID   string
	conn        voice.Conn
	connectedAt time.Time

	mu     sync.RWMutex
	status voice.Status
}

func newHandle(roomID, channelID string, conn voice.Conn) *Handle {
	return &Handle{
		roomID:      roomID,
		channelID:   channelID,
		conn:        conn,
		connectedAt: time.Now(),
		status:      voice.StatusIdle,
	}
}

// RoomID returns the room the handle belongs to.
func (h *Handle) RoomID() string { return h.roomID }

// ChannelID returns the joined voice channel.
func (h *Handle) ChannelID() string { return h.channelID }

// Conn returns the underlying voice session.
func (h *Handle) Conn() voice.Conn { return h.conn }

// ConnectedAt returns when the handle became ready.
func (h *Handle) ConnectedAt() time.Time { return h.connectedAt }

// Status returns the playback status.
func (h *Handle) Status() voice.Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// SetStatus sets the playback status.
func (h *Handle) SetStatus(s voice.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = s
}
