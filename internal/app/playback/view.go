package playback

import (
	"github.com/osa030/guildbox/internal/app/voice"
	"github.com/osa030/guildbox/internal/domain/track"
)

// View is a read-only snapshot of a room.
type View struct {
	RoomID     string
	Connected  bool
	ChannelID  string
	Status     voice.Status
	NowPlaying *track.Track
	Queue      []track.Track
	Loop       bool
}

// PlayRequest is a request to search for and queue a track.
type PlayRequest struct {
	RoomID      string
	ChannelID   string // Voice channel of the requester; empty if not in voice
	Query       string
	Requester   track.Requester
	ReplyTarget string
}

// PlayResult describes the outcome of Play.
type PlayResult struct {
	Track    track.Track
	Results  []track.ResolvedAudio // Search preview
	Position int                   // 1-based queue position; 0 if next up or dropped
	Started  bool
}
