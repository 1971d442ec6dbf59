// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Track represents a queued request.
// Immutable once enqueued.
type Track struct {
	ID          string        // Queue entry ID
	SourceRef   string        // Page URL or search string used for resolution
	Title       string        // Display title
	Uploader    string        // Channel / artist name (optional)
	Duration    time.Duration // Track duration (zero if unknown)
	Requester   Requester     // Who asked for it
	ReplyTarget string        // Text channel ID for now-playing notices
	AddedAt     time.Time     // Time when added to queue
}

// Requester represents the member who requested the track.
type Requester struct {
	ID   string // Platform user ID (optional)
	Name string // Display name
}

// ResolvedAudio is the result of resolving a source reference.
// URL is a direct, short-lived media URL.
type ResolvedAudio struct {
	URL      string
	Title    string
	Duration time.Duration
	Uploader string
	PageURL  string
}

// DisplayTitle returns the title, falling back to the source reference.
func (t Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.SourceRef
}

// ToTrack builds a Track from a resolved search hit.
// The page URL becomes the source reference so later resolution hits the same item.
func (r ResolvedAudio) ToTrack(query string, requester Requester, replyTarget string) Track {
	ref := r.PageURL
	if ref == "" {
		ref = query
	}
	title := r.Title
	if title == "" {
		title = "Unknown"
	}
	return Track{
		SourceRef:   ref,
		Title:       title,
		Uploader:    r.Uploader,
		Duration:    r.Duration,
		Requester:   requester,
		ReplyTarget: replyTarget,
		AddedAt:     time.Now(),
	}
}

// FormatDuration renders d as m:ss, or "Unknown" when d is zero.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "Unknown"
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
