// Package resolver turns source references into playable streams.
package resolver

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/apperr"
	"github.com/osa030/guildbox/internal/domain/track"
)

// Backend extracts media with an external tool.
type Backend interface {
	// Extract resolves a URL or "ytsearchN:" target to a stream.
	Extract(ctx context.Context, target string) (track.ResolvedAudio, error)
	// Search returns metadata-only hits for a free-text query.
	Search(ctx context.Context, query string, limit int) ([]track.ResolvedAudio, error)
}

// LinkRewriter maps links from catalogue-only services to search text.
type LinkRewriter interface {
	IsTrackLink(s string) bool
	SearchQuery(ctx context.Context, link string) (string, error)
}

// Config represents resolver configuration.
type Config struct {
	Timeout time.Duration
}

// Service resolves references through a Backend.
type Service struct {
	backend  Backend
	rewriter LinkRewriter
	timeout  time.Duration
}

// New creates a new resolver. rewriter may be nil.
func New(backend Backend, rewriter LinkRewriter, cfg Config) *Service {
	return &Service{
		backend:  backend,
		rewriter: rewriter,
		timeout:  cfg.Timeout,
	}
}

// Resolve returns a fresh stream URL and metadata for ref.
// Search strings resolve to their top match.
func (s *Service) Resolve(ctx context.Context, ref string) (track.ResolvedAudio, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return track.ResolvedAudio{}, errors.Mark(errors.New("empty source reference"), apperr.ErrResolution)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query, err := s.rewrite(ctx, ref)
	if err != nil {
		return track.ResolvedAudio{}, apperr.Resolution(err, "resolve %s", ref)
	}

	target := query
	if !IsURL(query) {
		target = "ytsearch1:" + query
	}

	audio, err := s.backend.Extract(ctx, target)
	if err != nil {
		return track.ResolvedAudio{}, apperr.Resolution(err, "resolve %s", ref)
	}
	if audio.URL == "" {
		return track.ResolvedAudio{}, apperr.Resolution(errors.New("no stream url"), "resolve %s", ref)
	}
	if audio.PageURL == "" && IsURL(query) {
		audio.PageURL = query
	}

	zlog.Debug().Msgf("resolver: resolved: ref=%s title=%s", ref, audio.Title)
	return audio, nil
}

// Search returns up to limit candidate items for query.
// A direct link yields exactly that item.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]track.ResolvedAudio, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Precondition("Please provide something to play.")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q, err := s.rewrite(ctx, query)
	if err != nil {
		return nil, apperr.Resolution(err, "search %s", query)
	}

	if IsURL(q) {
		audio, err := s.backend.Extract(ctx, q)
		if err != nil {
			return nil, apperr.Resolution(err, "search %s", query)
		}
		if audio.PageURL == "" {
			audio.PageURL = q
		}
		return []track.ResolvedAudio{audio}, nil
	}

	results, err := s.backend.Search(ctx, q, limit)
	if err != nil {
		return nil, apperr.Resolution(err, "search %s", query)
	}
	if len(results) == 0 {
		return nil, apperr.Resolution(errors.New("no results found"), "search %s", query)
	}
	return results, nil
}

func (s *Service) rewrite(ctx context.Context, ref string) (string, error) {
	if s.rewriter == nil || !s.rewriter.IsTrackLink(ref) {
		return ref, nil
	}
	return s.rewriter.SearchQuery(ctx, ref)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// IsURL reports whether s is an absolute http(s) URL.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
