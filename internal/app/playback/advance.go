package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/apperr"
	"github.com/osa030/guildbox/internal/app/connection"
	"github.com/osa030/guildbox/internal/app/room"
	"github.com/osa030/guildbox/internal/app/voice"
	"github.com/osa030/guildbox/internal/domain/track"
)

// advance picks the next track and resolves it off the loop, or leaves the
// room idle. Runs on the room loop.
func (e *Engine) advance(l *roomLoop) {
	st := e.store.Get(l.roomID)
	h, ok := e.conns.Handle(l.roomID)
	if !ok {
		st.Unbind()
		zlog.Info().Msgf("playback: not connected, idle: room=%s", l.roomID)
		return
	}

	next, replay, ok := nextTrack(st)
	if !ok {
		st.Unbind()
		h.SetStatus(voice.StatusIdle)
		zlog.Info().Msgf("playback: queue empty, idle: room=%s", l.roomID)
		return
	}
	e.resolve(l, st, next, replay)
}

// resolve binds t, looks it up on its own goroutine and posts the result back
// to the room loop. Only the room's latest resolution is honoured.
func (e *Engine) resolve(l *roomLoop, st *room.State, t track.Track, replay bool) {
	e.cancelResolve(l)
	st.Bind(t)

	ctx, cancel := context.WithCancel(e.ctx)
	p := &pending{id: uuid.New().String(), track: t, replay: replay, cancel: cancel}
	l.resolving = p
	zlog.Debug().Msgf("playback: resolving: room=%s title=%s", l.roomID, t.DisplayTitle())

	roomID := l.roomID
	go func() {
		audio, err := e.lookup(ctx, roomID, t.SourceRef)
		e.post(roomID, func(l *roomLoop) {
			e.resolved(l, p.id, audio, err)
		})
	}()
}

// lookup calls the resolver, converting a panic into an internal error.
func (e *Engine) lookup(ctx context.Context, roomID, ref string) (audio track.ResolvedAudio, err error) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback: resolver panicked: room=%s panic=%v", roomID, r)
			err = apperr.Internal(errors.Newf("panic: %v", r), "resolve %s", ref)
		}
	}()
	return e.resolver.Resolve(ctx, ref)
}

// cancelResolve abandons the room's in-flight resolution, if any.
func (e *Engine) cancelResolve(l *roomLoop) {
	if l.resolving == nil {
		return
	}
	l.resolving.cancel()
	l.resolving = nil
}

// resolved starts the resolved track, or reports and drops it and moves on.
// Results of abandoned resolutions are ignored.
func (e *Engine) resolved(l *roomLoop, id string, audio track.ResolvedAudio, err error) {
	p := l.resolving
	if p == nil || p.id != id {
		zlog.Debug().Msgf("playback: ignoring stale resolution: room=%s", l.roomID)
		return
	}
	p.cancel()
	l.resolving = nil

	st := e.store.Get(l.roomID)
	h, ok := e.conns.Handle(l.roomID)
	if !ok {
		st.Unbind()
		zlog.Info().Msgf("playback: not connected, idle: room=%s", l.roomID)
		return
	}
	if err == nil {
		err = e.start(l, h, st, p.track, audio)
	}
	if err == nil {
		zlog.Info().Msgf("playback: now playing: room=%s title=%s loop=%t", l.roomID, p.track.DisplayTitle(), st.Loop())
		e.sink.NowPlaying(l.roomID, p.track, st.Loop())
		return
	}

	zlog.Warn().Err(err).Msgf("playback: dropping track: room=%s title=%s replay=%t", l.roomID, p.track.DisplayTitle(), p.replay)
	st.Unbind()
	e.sink.ResolveFailed(l.roomID, p.track, err)

	if e.ctx.Err() != nil {
		return
	}
	e.advance(l)
}

// nextTrack returns the track to play next. replay is true when loop mode
// re-plays the bound track.
func nextTrack(st *room.State) (t track.Track, replay bool, ok bool) {
	if st.Loop() {
		if np, bound := st.NowPlaying(); bound {
			return np, true, true
		}
	}
	st.Unbind()
	t, ok = st.Pop()
	return t, false, ok
}

// start plays audio on h and binds t. A source that is still bound is stopped
// first; its completion no longer matches and is ignored.
func (e *Engine) start(l *roomLoop, h *connection.Handle, st *room.State, t track.Track, audio track.ResolvedAudio) error {
	e.stopSource(l)

	id := uuid.New().String()
	roomID := l.roomID
	src, err := h.Conn().Play(audio.URL, func(err error) {
		e.onSourceDone(roomID, id, err)
	})
	if err != nil {
		h.SetStatus(voice.StatusIdle)
		return errors.Wrap(err, "failed to start audio")
	}

	l.current = &binding{id: id, src: src, track: t}
	st.Bind(t)
	h.SetStatus(voice.StatusPlaying)
	return nil
}

// stopSource abandons any pending resolution, then unbinds and stops the
// current source, if any.
func (e *Engine) stopSource(l *roomLoop) {
	e.cancelResolve(l)
	if l.current == nil {
		return
	}
	b := l.current
	l.current = nil
	b.src.Stop()
	if h, ok := e.conns.Handle(l.roomID); ok {
		h.SetStatus(voice.StatusIdle)
	}
}

// onSourceDone is the completion callback of a source. It runs on the audio
// goroutine and only posts to the room loop.
func (e *Engine) onSourceDone(roomID, sourceID string, err error) {
	e.post(roomID, func(l *roomLoop) {
		e.trackFinished(l, sourceID, err)
	})
}

// trackFinished advances the room when sourceID is still the bound source.
func (e *Engine) trackFinished(l *roomLoop, sourceID string, err error) {
	if l.current == nil || l.current.id != sourceID {
		zlog.Debug().Msgf("playback: ignoring stale completion: room=%s source=%s", l.roomID, sourceID)
		return
	}
	finished := l.current.track
	l.current = nil
	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: source ended with error: room=%s title=%s", l.roomID, finished.DisplayTitle())
	} else {
		zlog.Debug().Msgf("playback: track finished: room=%s title=%s", l.roomID, finished.DisplayTitle())
	}
	e.advance(l)
}
