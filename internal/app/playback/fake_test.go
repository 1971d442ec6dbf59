package playback

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/connection"
	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/room"
	"github.com/osa030/guildbox/internal/app/voice"
	"github.com/osa030/guildbox/internal/domain/track"
)

type fakeTransport struct {
	mu      sync.Mutex
	conns   []*fakeConn
	joinErr error
}

func (t *fakeTransport) Join(ctx context.Context, roomID, channelID string) (voice.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.joinErr != nil {
		return nil, t.joinErr
	}
	c := &fakeConn{channelID: channelID}
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

type fakeConn struct {
	mu           sync.Mutex
	channelID    string
	sources      []*fakeSource
	disconnected bool
	playErr      error
}

func (c *fakeConn) ChannelID() string { return c.channelID }
func (c *fakeConn) Deafen(ctx context.Context) error { return nil }

func (c *fakeConn) Play(mediaURL string, onDone func(error)) (voice.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playErr != nil {
		return nil, c.playErr
	}
	s := &fakeSource{url: mediaURL, onDone: onDone}
	c.sources = append(c.sources, s)
	return s, nil
}

func (c *fakeConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *fakeConn) sourceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

func (c *fakeConn) source(i int) *fakeSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sources[i]
}

func (c *fakeConn) urls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sources))
	for i, s := range c.sources {
		out[i] = s.url
	}
	return out
}

func (c *fakeConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// fakeSource fires its completion at most once, from its own goroutine when stopped.
type fakeSource struct {
	url     string
	onDone  func(error)
	once    sync.Once
	paused  atomic.Bool
	stopped atomic.Bool
	fired   atomic.Bool
}

func (s *fakeSource) Pause() { s.paused.Store(true) }
func (s *fakeSource) Resume() { s.paused.Store(false) }

func (s *fakeSource) Stop() {
	s.stopped.Store(true)
	go s.Finish(nil)
}

// Finish simulates the end of the stream.
func (s *fakeSource) Finish(err error) {
	s.once.Do(func() {
		s.onDone(err)
		s.fired.Store(true)
	})
}

type fakeResolver struct {
	mu       sync.Mutex
	fail     map[string]bool
	panicOn  map[string]bool
	gates    map[string]chan struct{}
	resolved map[string]int
	returned map[string]int
	searches []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		fail:     make(map[string]bool),
		panicOn:  make(map[string]bool),
		gates:    make(map[string]chan struct{}),
		resolved: make(map[string]int),
		returned: make(map[string]int),
	}
}

// gate makes resolution of ref block until the returned channel is closed.
// Cancellation is ignored, like a stuck extractor.
func (r *fakeResolver) gate(ref string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{})
	r.gates[ref] = ch
	return ch
}

func (r *fakeResolver) Resolve(ctx context.Context, ref string) (track.ResolvedAudio, error) {
	r.mu.Lock()
	r.resolved[ref]++
	fail, boom, gate := r.fail[ref], r.panicOn[ref], r.gates[ref]
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.returned[ref]++
		r.mu.Unlock()
	}()

	if gate != nil {
		<-gate
	}

	if boom {
		panic("resolver exploded")
	}
	if fail {
		return track.ResolvedAudio{}, errors.Newf("cannot resolve %s", ref)
	}
	return track.ResolvedAudio{URL: "stream:" + ref, Title: ref}, nil
}

func (r *fakeResolver) Search(ctx context.Context, query string, limit int) ([]track.ResolvedAudio, error) {
	r.mu.Lock()
	r.searches = append(r.searches, query)
	r.mu.Unlock()
	return []track.ResolvedAudio{{Title: query, PageURL: query}}, nil
}

func (r *fakeResolver) resolveCount(ref string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved[ref]
}

func (r *fakeResolver) returnCount(ref string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.returned[ref]
}

type sinkEvent struct {
	kind     string
	roomID   string
	track    track.Track
	position int
	loop     bool
	err      error
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) add(ev sinkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) NowPlaying(roomID string, t track.Track, loop bool) {
	s.add(sinkEvent{kind: "now_playing", roomID: roomID, track: t, loop: loop})
}

func (s *recordingSink) Queued(roomID string, t track.Track, position int) {
	s.add(sinkEvent{kind: "queued", roomID: roomID, track: t, position: position})
}

func (s *recordingSink) ResolveFailed(roomID string, t track.Track, err error) {
	s.add(sinkEvent{kind: "resolve_failed", roomID: roomID, track: t, err: err})
}

func (s *recordingSink) IdleDisconnect(roomID string) {
	s.add(sinkEvent{kind: "idle_disconnect", roomID: roomID})
}

func (s *recordingSink) byKind(kind string) []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, ev := range s.events {
		if ev.kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	engine    *Engine
	transport *fakeTransport
	resolver  *fakeResolver
	sink      *recordingSink
	conns     *connection.Manager
	store     *room.Store
}

func newTestEnv(t *testing.T, chain *filter.Chain) *testEnv {
	t.Helper()
	transport := &fakeTransport{}
	conns := connection.NewManager(transport, connection.Config{
		AttemptTimeout: time.Second,
		OverallTimeout: 2 * time.Second,
		MaxAttempts:    1,
	})
	store := room.NewStore()
	res := newFakeResolver()
	sink := &recordingSink{}
	e := NewEngine(Config{}, store, conns, res, sink, chain)
	t.Cleanup(func() { e.Close(context.Background()) })
	return &testEnv{engine: e, transport: transport, resolver: res, sink: sink, conns: conns, store: store}
}

func (env *testEnv) connect(t *testing.T, roomID, channelID string) *fakeConn {
	t.Helper()
	h, err := env.conns.Connect(context.Background(), roomID, channelID)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return h.Conn().(*fakeConn)
}

// sync waits until every task queued on the room so far has run.
func (env *testEnv) sync(t *testing.T, roomID string) {
	t.Helper()
	if err := env.engine.do(context.Background(), roomID, func(l *roomLoop) error { return nil }); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

// waitSources waits until conn has started n sources and the room loop has
// finished binding the last one.
func (env *testEnv) waitSources(t *testing.T, conn *fakeConn, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return conn.sourceCount() >= n }, waitFor, tick)
	env.sync(t, roomID)
	require.Equal(t, n, conn.sourceCount())
}

// waitEvents waits until the sink has recorded n events of kind.
func (env *testEnv) waitEvents(t *testing.T, kind string, n int) []sinkEvent {
	t.Helper()
	require.Eventually(t, func() bool { return len(env.sink.byKind(kind)) >= n }, waitFor, tick)
	return env.sink.byKind(kind)
}

func tr(ref string) track.Track {
	return track.Track{SourceRef: ref, Title: ref, Requester: track.Requester{Name: "tester"}}
}

func refs(ts []track.Track) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.SourceRef
	}
	return out
}

func streams(ids ...string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("stream:%s", id)
	}
	return out
}
