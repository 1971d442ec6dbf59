package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/guildbox/internal/domain/track"
)

// DuplicateTrackFilter rejects a track that is already playing or queued.
// Detects:
// - Same source reference
// - Re-uploads (normalized title + same uploader)
// Excludes:
// - Covers (same title but different uploader)
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already playing or queued, including re-uploads of the same song by the same uploader"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(config map[string]any) error {
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request) Result {
	candidates := req.Queue
	if req.NowPlaying != nil {
		candidates = append([]track.Track{*req.NowPlaying}, req.Queue...)
	}

	for _, existing := range candidates {
		if existing.SourceRef == req.Track.SourceRef {
			return Reject("duplicate_track")
		}
		if isSameSong(existing, req.Track) {
			return Reject("duplicate_track")
		}
	}

	return Accept()
}

// isSameSong reports whether two tracks are the same song by the same uploader.
func isSameSong(a, b track.Track) bool {
	if normalizeTitle(a.Title) != normalizeTitle(b.Title) {
		return false
	}
	return isSameUploader(a, b)
}

var (
	decorationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*[\(\[][^\)\]]*official[^\)\]]*[\)\]]`), // "(Official Video)", "[Official Audio]"
		regexp.MustCompile(`\s*[\(\[][^\)\]]*lyrics?[^\)\]]*[\)\]]`),  // "(Lyrics)", "[Lyric Video]"
		regexp.MustCompile(`\s*[\(\[](hd|hq|4k|mv|m/v|audio)[\)\]]`),  // "[HD]", "(MV)"
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),           // "- 2011 Remaster"
		regexp.MustCompile(`\s*[\(\[][^\)\]]*remaster[^\)\]]*[\)\]]`), // "(Remastered 2023)"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`),      // "- Remastered"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	spacePattern = regexp.MustCompile(`\s+`)
)

// normalizeTitle strips upload decorations and version details.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)

	for _, pattern := range decorationPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spacePattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

// normalizeUploader folds auto-generated channel names onto the artist.
func normalizeUploader(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimSuffix(u, " - topic")
	u = strings.TrimSuffix(u, "vevo")
	return strings.TrimSpace(u)
}

// isSameUploader checks if two tracks come from the same uploader.
func isSameUploader(a, b track.Track) bool {
	ua, ub := normalizeUploader(a.Uploader), normalizeUploader(b.Uploader)
	if ua == "" || ub == "" {
		return false
	}
	return ua == ub
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
