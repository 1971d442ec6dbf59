// Package voice defines the contracts between playback and the voice transport.
package voice

import "context"

// Status represents the playback status of a voice connection.
type Status int

const (
	StatusIdle    Status = iota // Nothing bound
	StatusPlaying               // Source is sending audio
	StatusPaused                // Source is bound but paused
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether a source is bound.
func (s Status) Active() bool {
	return s == StatusPlaying || s == StatusPaused
}

// Transport joins voice channels.
type Transport interface {
	Join(ctx context.Context, roomID, channelID string) (Conn, error)
}

// Presence reports voice channel occupancy.
type Presence interface {
	// HumanCount returns the number of non-bot members in channelID.
	HumanCount(roomID, channelID string) (int, error)
}

// Conn is an established voice session.
type Conn interface {
	ChannelID() string
	Deafen(ctx context.Context) error
	// Play starts streaming mediaURL. onDone is invoked exactly once, from the
	// audio goroutine, when the source finishes, fails or is stopped.
	Play(mediaURL string, onDone func(error)) (Source, error)
	Disconnect(ctx context.Context) error
}

// Source is a playing audio stream.
type Source interface {
	Pause()
	Resume()
	Stop()
}
