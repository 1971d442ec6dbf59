// Package filter provides the filter chain for play request validation.
package filter

import (
	"context"

	"github.com/osa030/guildbox/internal/domain/track"
)

// Request represents a play request to be validated.
type Request struct {
	RoomID     string
	Track      track.Track   // Candidate track
	Queue      []track.Track // Tracks already waiting in the room
	NowPlaying *track.Track  // Track currently bound, if any
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_track", "duration_limit_exceeded"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Message returns a user-facing explanation of a rejection code.
func Message(code string) string {
	switch code {
	case "duplicate_track":
		return "That track is already playing or in the queue."
	case "duration_limit_exceeded":
		return "That track is too short or too long for this server."
	default:
		return "That request was rejected."
	}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check.
	Check(ctx context.Context, req Request) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
