package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/apperr"
	"github.com/osa030/guildbox/internal/app/voice"
	"github.com/osa030/guildbox/internal/domain/track"
)

const taskBuffer = 32

var errRoomClosed = errors.New("room loop closed")

// binding is the audio source currently bound to a room.
type binding struct {
	id    string
	src   voice.Source
	track track.Track
}

// pending is a resolution running off the room loop.
type pending struct {
	id     string
	track  track.Track
	replay bool
	cancel context.CancelFunc
}

// roomLoop serializes all work for one room.
// Fields below tasks are only touched from the loop goroutine.
type roomLoop struct {
	roomID string
	tasks  chan func()
	quit   chan struct{}

	current   *binding
	resolving *pending
}

func newRoomLoop(roomID string) *roomLoop {
	return &roomLoop{
		roomID: roomID,
		tasks:  make(chan func(), taskBuffer),
		quit:   make(chan struct{}),
	}
}

func (l *roomLoop) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-l.quit:
			return
		case task := <-l.tasks:
			task()
		}
	}
}

// exec runs fn, converting a panic into an internal error so the loop survives.
func (l *roomLoop) exec(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback: room task panicked: room=%s panic=%v", l.roomID, r)
			err = apperr.Internal(errors.Newf("panic: %v", r), "room %s", l.roomID)
		}
	}()
	return fn()
}
