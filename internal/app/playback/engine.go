// Package playback drives per-room queues and audio sources.
package playback

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/apperr"
	"github.com/osa030/guildbox/internal/app/connection"
	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/room"
	"github.com/osa030/guildbox/internal/app/voice"
	"github.com/osa030/guildbox/internal/domain/track"
)

const (
	msgNotInVoice     = "You need to be in a voice channel to play music!"
	msgNotConnected   = "I'm not connected to a voice channel!"
	msgNothingPlaying = "No audio is currently playing!"
	msgNotPaused      = "Audio is not paused!"
)

// Connections is the subset of the connection manager the engine uses.
type Connections interface {
	Connect(ctx context.Context, roomID, channelID string) (*connection.Handle, error)
	Disconnect(ctx context.Context, roomID string) bool
	Forget(roomID string)
	Handle(roomID string) (*connection.Handle, bool)
}

// Resolver turns source references into streams.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (track.ResolvedAudio, error)
	Search(ctx context.Context, query string, limit int) ([]track.ResolvedAudio, error)
}

// Config holds engine configuration.
type Config struct {
	SearchLimit int // Number of search hits shown by Play
}

// Engine owns playback for every room. Work for a room runs on that room's
// loop; rooms never block each other.
type Engine struct {
	cfg      Config
	store    *room.Store
	conns    Connections
	resolver Resolver
	sink     notification.Sink
	filters  *filter.Chain

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	loops  map[string]*roomLoop
	closed bool
	wg     sync.WaitGroup
}

// NewEngine creates a new playback engine. filters may be nil.
func NewEngine(cfg Config, store *room.Store, conns Connections, resolver Resolver, sink notification.Sink, filters *filter.Chain) *Engine {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		store:    store,
		conns:    conns,
		resolver: resolver,
		sink:     sink,
		filters:  filters,
		ctx:      ctx,
		cancel:   cancel,
		loops:    make(map[string]*roomLoop),
	}
}

// loopFor returns the room's loop, starting it if needed.
func (e *Engine) loopFor(roomID string) (*roomLoop, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false
	}
	l, ok := e.loops[roomID]
	if !ok {
		l = newRoomLoop(roomID)
		e.loops[roomID] = l
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			l.run(e.ctx.Done())
		}()
	}
	return l, true
}

func (e *Engine) existingLoop(roomID string) (*roomLoop, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.loops[roomID]
	return l, ok
}

// retire stops the room's loop. Work still queued on it is dropped.
func (e *Engine) retire(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.loops[roomID]; ok {
		delete(e.loops, roomID)
		close(l.quit)
	}
}

// do runs fn on the room's loop and waits for its result.
func (e *Engine) do(ctx context.Context, roomID string, fn func(l *roomLoop) error) error {
	for {
		l, ok := e.loopFor(roomID)
		if !ok {
			return apperr.Internal(errRoomClosed, "room %s", roomID)
		}

		done := make(chan error, 1)
		task := func() {
			done <- l.exec(func() error { return fn(l) })
		}

		select {
		case l.tasks <- task:
		case <-l.quit:
			// Retired between lookup and send; use a fresh loop.
			continue
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case err := <-done:
			return err
		case <-l.quit:
			return apperr.Internal(errRoomClosed, "room %s", roomID)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// post queues fn on the room's existing loop without waiting. Never blocks.
func (e *Engine) post(roomID string, fn func(l *roomLoop)) {
	l, ok := e.existingLoop(roomID)
	if !ok {
		zlog.Debug().Msgf("playback: dropping task for inactive room: room=%s", roomID)
		return
	}
	task := func() {
		_ = l.exec(func() error {
			fn(l)
			return nil
		})
	}
	select {
	case l.tasks <- task:
		return
	default:
	}
	go func() {
		select {
		case l.tasks <- task:
		case <-l.quit:
		case <-e.ctx.Done():
		}
	}()
}

// Play searches for req.Query, joins the requester's channel and queues the top hit.
func (e *Engine) Play(ctx context.Context, req PlayRequest) (*PlayResult, error) {
	if req.ChannelID == "" {
		return nil, apperr.Precondition(msgNotInVoice)
	}

	results, err := e.resolver.Search(ctx, req.Query, e.cfg.SearchLimit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, apperr.Resolution(errors.New("no results found"), "search %s", req.Query)
	}
	t := results[0].ToTrack(req.Query, req.Requester, req.ReplyTarget)
	t.ID = uuid.New().String()

	if h, ok := e.conns.Handle(req.RoomID); ok && h.ChannelID() != req.ChannelID {
		// Moving: release the current source before the old connection goes away.
		if err := e.do(ctx, req.RoomID, func(l *roomLoop) error {
			e.stopSource(l)
			e.store.Get(l.roomID).Unbind()
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if _, err := e.conns.Connect(ctx, req.RoomID, req.ChannelID); err != nil {
		return nil, err
	}

	pos, started, err := e.enqueue(ctx, req.RoomID, t)
	if err != nil {
		return nil, err
	}
	return &PlayResult{
		Track:    t,
		Results:  results,
		Position: pos,
		Started:  started,
	}, nil
}

// Enqueue appends t to the room's queue and returns its 1-based position.
// An idle, connected room starts on it right away (position 0).
func (e *Engine) Enqueue(ctx context.Context, roomID string, t track.Track) (int, error) {
	pos, _, err := e.enqueue(ctx, roomID, t)
	return pos, err
}

func (e *Engine) enqueue(ctx context.Context, roomID string, t track.Track) (int, bool, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	var (
		pos     int
		started bool
	)
	err := e.do(ctx, roomID, func(l *roomLoop) error {
		st := e.store.Get(roomID)

		if e.filters != nil {
			snap := st.Snapshot()
			res := e.filters.Execute(ctx, filter.Request{
				RoomID:     roomID,
				Track:      t,
				Queue:      snap.Queue,
				NowPlaying: snap.NowPlaying,
			})
			if !res.Accepted {
				return apperr.Precondition(filter.Message(res.Code))
			}
		}

		st.Push(t)
		zlog.Info().Msgf("playback: enqueued: room=%s title=%s requester=%s", roomID, t.DisplayTitle(), t.Requester.Name)

		if l.current == nil && l.resolving == nil {
			if _, ok := e.conns.Handle(roomID); ok {
				e.advance(l)
			}
		}

		if p := l.resolving; p != nil && p.track.ID == t.ID {
			started = true
			return nil
		}
		for i, q := range st.Queue() {
			if q.ID == t.ID {
				pos = i + 1
				e.sink.Queued(roomID, t, pos)
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return pos, started, nil
}

// QueueStatus returns a snapshot of the room.
func (e *Engine) QueueStatus(ctx context.Context, roomID string) (View, error) {
	v := View{RoomID: roomID, Status: voice.StatusIdle}
	if st, ok := e.store.Lookup(roomID); ok {
		snap := st.Snapshot()
		v.NowPlaying = snap.NowPlaying
		v.Queue = snap.Queue
		v.Loop = snap.Loop
	}
	if h, ok := e.conns.Handle(roomID); ok {
		v.Connected = true
		v.ChannelID = h.ChannelID()
		v.Status = h.Status()
	}
	return v, nil
}

// Rooms returns a view of every known room.
func (e *Engine) Rooms(ctx context.Context) []View {
	ids := e.store.Rooms()
	views := make([]View, 0, len(ids))
	for _, id := range ids {
		v, err := e.QueueStatus(ctx, id)
		if err != nil {
			continue
		}
		views = append(views, v)
	}
	return views
}

// control runs fn on the room's loop after checking that the room is connected.
func (e *Engine) control(ctx context.Context, roomID string, fn func(l *roomLoop, h *connection.Handle, st *room.State) error) error {
	if _, ok := e.conns.Handle(roomID); !ok {
		return apperr.Precondition(msgNotConnected)
	}
	return e.do(ctx, roomID, func(l *roomLoop) error {
		h, ok := e.conns.Handle(roomID)
		if !ok {
			return apperr.Precondition(msgNotConnected)
		}
		return fn(l, h, e.store.Get(roomID))
	})
}

// Pause pauses the current source.
func (e *Engine) Pause(ctx context.Context, roomID string) error {
	return e.control(ctx, roomID, func(l *roomLoop, h *connection.Handle, st *room.State) error {
		if l.current == nil || h.Status() != voice.StatusPlaying {
			return apperr.Precondition(msgNothingPlaying)
		}
		l.current.src.Pause()
		h.SetStatus(voice.StatusPaused)
		zlog.Info().Msgf("playback: paused: room=%s", roomID)
		return nil
	})
}

// Resume resumes a paused source.
func (e *Engine) Resume(ctx context.Context, roomID string) error {
	return e.control(ctx, roomID, func(l *roomLoop, h *connection.Handle, st *room.State) error {
		if l.current == nil || h.Status() != voice.StatusPaused {
			return apperr.Precondition(msgNotPaused)
		}
		l.current.src.Resume()
		h.SetStatus(voice.StatusPlaying)
		zlog.Info().Msgf("playback: resumed: room=%s", roomID)
		return nil
	})
}

// Skip stops the current source; its completion advances the queue.
func (e *Engine) Skip(ctx context.Context, roomID string) (track.Track, error) {
	var skipped track.Track
	err := e.control(ctx, roomID, func(l *roomLoop, h *connection.Handle, st *room.State) error {
		if l.current == nil || !h.Status().Active() {
			return apperr.Precondition(msgNothingPlaying)
		}
		skipped = l.current.track
		l.current.src.Stop()
		zlog.Info().Msgf("playback: skipped: room=%s title=%s", roomID, skipped.DisplayTitle())
		return nil
	})
	return skipped, err
}

// Stop stops the current source and clears the room without disconnecting.
func (e *Engine) Stop(ctx context.Context, roomID string) error {
	return e.control(ctx, roomID, func(l *roomLoop, h *connection.Handle, st *room.State) error {
		e.stopSource(l)
		st.Reset()
		zlog.Info().Msgf("playback: stopped and cleared: room=%s", roomID)
		return nil
	})
}

// ToggleLoop flips loop mode for the bound track and returns the new value.
func (e *Engine) ToggleLoop(ctx context.Context, roomID string) (bool, error) {
	var enabled bool
	err := e.control(ctx, roomID, func(l *roomLoop, h *connection.Handle, st *room.State) error {
		if l.current == nil || !h.Status().Active() {
			return apperr.Precondition(msgNothingPlaying)
		}
		enabled = !st.Loop()
		st.SetLoop(enabled)
		zlog.Info().Msgf("playback: loop toggled: room=%s loop=%t", roomID, enabled)
		return nil
	})
	return enabled, err
}

// Disconnect stops playback, clears the room and leaves voice.
func (e *Engine) Disconnect(ctx context.Context, roomID string) error {
	if _, ok := e.conns.Handle(roomID); !ok {
		return apperr.Precondition(msgNotConnected)
	}
	return e.Teardown(ctx, roomID)
}

// Teardown stops playback, clears the room and leaves voice. Missing
// connections are not an error.
func (e *Engine) Teardown(ctx context.Context, roomID string) error {
	err := e.do(ctx, roomID, func(l *roomLoop) error {
		e.stopSource(l)
		e.store.Clear(roomID)
		return nil
	})
	e.conns.Disconnect(ctx, roomID)
	e.store.Delete(roomID)
	e.retire(roomID)
	zlog.Info().Msgf("playback: torn down: room=%s", roomID)
	return err
}

// HandleVoiceLost clears a room whose voice session the platform closed.
// channelID is the channel that was left; events for a channel the room is
// no longer bound to are ignored.
func (e *Engine) HandleVoiceLost(ctx context.Context, roomID, channelID string) error {
	h, ok := e.conns.Handle(roomID)
	if !ok || (channelID != "" && h.ChannelID() != channelID) {
		return nil
	}
	e.conns.Forget(roomID)
	err := e.do(ctx, roomID, func(l *roomLoop) error {
		e.stopSource(l)
		e.store.Clear(roomID)
		return nil
	})
	e.store.Delete(roomID)
	e.retire(roomID)
	zlog.Warn().Msgf("playback: voice session lost, room cleared: room=%s channel=%s", roomID, channelID)
	return err
}

// Close stops every source and room loop.
func (e *Engine) Close(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.loops))
	for id := range e.loops {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		_ = e.do(ctx, id, func(l *roomLoop) error {
			e.stopSource(l)
			return nil
		})
	}

	e.mu.Lock()
	e.closed = true
	for id, l := range e.loops {
		close(l.quit)
		delete(e.loops, id)
	}
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}
