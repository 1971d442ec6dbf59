package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/guildbox/internal/domain/track"
)

func TestDuplicateTrackFilter_Check(t *testing.T) {
	playing := track.Track{SourceRef: "https://y/np", Title: "Now Playing Song", Uploader: "Band"}

	tests := []struct {
		name         string
		queue        []track.Track
		nowPlaying   *track.Track
		candidate    track.Track
		wantAccepted bool
	}{
		{
			name:         "empty room",
			candidate:    track.Track{SourceRef: "https://y/1", Title: "Song"},
			wantAccepted: true,
		},
		{
			name:         "same source queued",
			queue:        []track.Track{{SourceRef: "https://y/1", Title: "Song"}},
			candidate:    track.Track{SourceRef: "https://y/1", Title: "Song"},
			wantAccepted: false,
		},
		{
			name:         "same source playing",
			nowPlaying:   &playing,
			candidate:    track.Track{SourceRef: "https://y/np"},
			wantAccepted: false,
		},
		{
			name:         "re-upload by same artist channel",
			queue:        []track.Track{{SourceRef: "https://y/1", Title: "Bohemian Rhapsody (Official Video)", Uploader: "Queen"}},
			candidate:    track.Track{SourceRef: "https://y/2", Title: "Bohemian Rhapsody - 2011 Remaster", Uploader: "Queen - Topic"},
			wantAccepted: false,
		},
		{
			name:         "cover by different uploader",
			queue:        []track.Track{{SourceRef: "https://y/1", Title: "Yesterday", Uploader: "The Beatles"}},
			candidate:    track.Track{SourceRef: "https://y/2", Title: "Yesterday", Uploader: "Some Cover Band"},
			wantAccepted: true,
		},
		{
			name:         "unknown uploader is not a duplicate",
			queue:        []track.Track{{SourceRef: "https://y/1", Title: "Yesterday"}},
			candidate:    track.Track{SourceRef: "https://y/2", Title: "Yesterday"},
			wantAccepted: true,
		},
		{
			name:         "remix allowed",
			queue:        []track.Track{{SourceRef: "https://y/1", Title: "Come Together", Uploader: "The Beatles"}},
			candidate:    track.Track{SourceRef: "https://y/2", Title: "Come Together (2019 Mix)", Uploader: "The Beatles"},
			wantAccepted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDuplicateTrackFilter()

			result := f.Check(context.Background(), Request{
				RoomID:     "g1",
				Track:      tt.candidate,
				Queue:      tt.queue,
				NowPlaying: tt.nowPlaying,
			})

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "duplicate_track", result.Code)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bohemian Rhapsody", "bohemian rhapsody"},
		{"Bohemian Rhapsody - 2011 Remaster", "bohemian rhapsody"},
		{"Yesterday (Remastered 2023)", "yesterday"},
		{"Hotel California [Remastered]", "hotel california"},
		{"Stairway to Heaven (Radio Edit)", "stairway to heaven"},
		{"Let It Be (Single Version)", "let it be"},
		{"Hey Jude - Remastered Version", "hey jude"},
		{"Never Gonna Give You Up (Official Music Video)", "never gonna give you up"},
		{"Song [Official Audio]", "song"},
		{"Song (Lyric Video)", "song"},
		{"Song [HD]", "song"},
		{"Come Together (2019 Mix)", "come together (2019 mix)"},
		{"   Extra   Spaces   ", "extra spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeTitle(tt.input))
		})
	}
}

func TestIsSameUploader(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected bool
	}{
		{name: "same", a: "Queen", b: "Queen", expected: true},
		{name: "case insensitive", a: "queen", b: "QUEEN", expected: true},
		{name: "topic channel", a: "Queen - Topic", b: "Queen", expected: true},
		{name: "vevo channel", a: "QueenVEVO", b: "Queen", expected: true},
		{name: "different", a: "Queen", b: "Muse", expected: false},
		{name: "empty", a: "", b: "Queen", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isSameUploader(track.Track{Uploader: tt.a}, track.Track{Uploader: tt.b})
			assert.Equal(t, tt.expected, got)
		})
	}
}
