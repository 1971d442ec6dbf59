// Package room provides per-room playback state.
package room

import (
	"sync"

	"github.com/osa030/guildbox/internal/domain/track"
)

// State holds the queue, loop flag and now-playing track of one room.
// Mutations happen on the room's playback loop; the lock keeps readers
// on other goroutines consistent.
type State struct {
	mu sync.RWMutex

	queue      []track.Track
	loop       bool
	nowPlaying *track.Track
}

// Snapshot is a consistent copy of a State.
type Snapshot struct {
	Queue      []track.Track
	Loop       bool
	NowPlaying *track.Track
}

// Push appends t to the queue and returns its 1-based position.
func (s *State) Push(t track.Track) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, t)
	return len(s.queue)
}

// Pop removes and returns the queue head.
func (s *State) Pop() (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return track.Track{}, false
	}
	t := s.queue[0]
	s.queue[0] = track.Track{}
	s.queue = s.queue[1:]
	return t, true
}

// Len returns the number of queued tracks.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// Queue returns a copy of the queued tracks.
func (s *State) Queue() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]track.Track, len(s.queue))
	copy(out, s.queue)
	return out
}

// Loop reports whether loop mode is enabled.
func (s *State) Loop() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loop
}

// SetLoop sets loop mode.
func (s *State) SetLoop(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = v
}

// NowPlaying returns the bound track.
func (s *State) NowPlaying() (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nowPlaying == nil {
		return track.Track{}, false
	}
	return *s.nowPlaying, true
}

// Bind sets t as the now-playing track.
func (s *State) Bind(t track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowPlaying = &t
}

// Unbind clears the now-playing track and disables loop.
func (s *State) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowPlaying = nil
	s.loop = false
}

// Contains reports whether a track with sourceRef is queued or playing.
func (s *State) Contains(sourceRef string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nowPlaying != nil && s.nowPlaying.SourceRef == sourceRef {
		return true
	}
	for _, t := range s.queue {
		if t.SourceRef == sourceRef {
			return true
		}
	}
	return false
}

// Snapshot returns a consistent copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Queue: make([]track.Track, len(s.queue)),
		Loop:  s.loop,
	}
	copy(snap.Queue, s.queue)
	if s.nowPlaying != nil {
		np := *s.nowPlaying
		snap.NowPlaying = &np
	}
	return snap
}

// Reset empties the queue, disables loop and clears now-playing.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.loop = false
	s.nowPlaying = nil
}
