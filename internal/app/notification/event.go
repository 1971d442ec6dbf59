package notification

import (
	"time"

	"github.com/osa030/guildbox/internal/domain/track"
)

// EventType represents a notification event type.
type EventType int

const (
	EventNowPlaying     EventType = iota // A track started playing
	EventQueued                          // A track was queued behind others
	EventResolveFailed                   // A queued track could not be resolved and was dropped
	EventIdleDisconnect                  // The bot left an empty voice channel
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventNowPlaying:
		return "now_playing"
	case EventQueued:
		return "queued"
	case EventResolveFailed:
		return "resolve_failed"
	case EventIdleDisconnect:
		return "idle_disconnect"
	default:
		return "unknown"
	}
}

// Event is a notification about a room.
type Event struct {
	Type       EventType
	RoomID     string
	Track      *track.Track // nil for EventIdleDisconnect
	Position   int          // Queue position for EventQueued
	Loop       bool         // Loop mode for EventNowPlaying
	Err        error        // Cause for EventResolveFailed
	SequenceNo uint64
	At         time.Time
}

// Sink receives playback notifications. Calls never block the caller.
type Sink interface {
	NowPlaying(roomID string, t track.Track, loop bool)
	Queued(roomID string, t track.Track, position int)
	ResolveFailed(roomID string, t track.Track, err error)
	IdleDisconnect(roomID string)
}
