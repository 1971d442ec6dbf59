package room

import (
	"sort"
	"sync"
)

// Store owns the State of every room.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*State
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*State),
	}
}

// Get returns the state for roomID, creating an empty one if absent.
func (s *Store) Get(roomID string) *State {
	s.mu.RLock()
	st, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.rooms[roomID]; ok {
		return st
	}
	st = &State{}
	s.rooms[roomID] = st
	return st
}

// Lookup returns the state for roomID without creating it.
func (s *Store) Lookup(roomID string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.rooms[roomID]
	return st, ok
}

// Clear empties the queue, disables loop and clears now-playing for roomID.
func (s *Store) Clear(roomID string) {
	s.Get(roomID).Reset()
}

// Delete drops the state for roomID.
func (s *Store) Delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.rooms[roomID]; ok {
		st.Reset()
		delete(s.rooms, roomID)
	}
}

// Rooms returns the known room IDs in sorted order.
func (s *Store) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
