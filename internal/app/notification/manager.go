// Package notification fans playback events out to subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/domain/track"
)

const (
	defaultBufferSize  = 128
	defaultSendTimeout = 500 * time.Millisecond
)

// Subscriber receives events.
type Subscriber interface {
	Send(ctx context.Context, ev *Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev *Event) error

// Send calls f.
func (f SubscriberFunc) Send(ctx context.Context, ev *Event) error {
	return f(ctx, ev)
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id  string
	sub Subscriber
}

// Config represents notification manager configuration.
type Config struct {
	BufferSize  int
	SendTimeout time.Duration
}

// Manager manages subscriptions and broadcasting.
// Publishing only enqueues; a single dispatcher delivers events in order.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex

	sendTimeout time.Duration
	eventCh     chan *Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	closeOnce   sync.Once
}

// NewManager creates a new notification manager and starts its dispatcher.
func NewManager(cfg Config) *Manager {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	m := &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   cfg.SendTimeout,
		eventCh:       make(chan *Event, cfg.BufferSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go m.run()
	return m
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(sub Subscriber) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:  id,
		sub: sub,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// NowPlaying publishes EventNowPlaying.
func (m *Manager) NowPlaying(roomID string, t track.Track, loop bool) {
	m.Publish(&Event{Type: EventNowPlaying, RoomID: roomID, Track: &t, Loop: loop})
}

// Queued publishes EventQueued.
func (m *Manager) Queued(roomID string, t track.Track, position int) {
	m.Publish(&Event{Type: EventQueued, RoomID: roomID, Track: &t, Position: position})
}

// ResolveFailed publishes EventResolveFailed.
func (m *Manager) ResolveFailed(roomID string, t track.Track, err error) {
	m.Publish(&Event{Type: EventResolveFailed, RoomID: roomID, Track: &t, Err: err})
}

// IdleDisconnect publishes EventIdleDisconnect.
func (m *Manager) IdleDisconnect(roomID string) {
	m.Publish(&Event{Type: EventIdleDisconnect, RoomID: roomID})
}

// Publish stamps ev and queues it for delivery. Drops the event when the
// buffer is full or the manager is closed.
func (m *Manager) Publish(ev *Event) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	ev.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	select {
	case <-m.stopCh:
		return
	default:
	}

	select {
	case m.eventCh <- ev:
	default:
		zlog.Warn().Msgf("notification: buffer full, dropping event: type=%s room=%s", ev.Type, ev.RoomID)
	}
}

func (m *Manager) run() {
	defer close(m.doneCh)
	for {
		select {
		case ev := <-m.eventCh:
			m.broadcast(ev)
		case <-m.stopCh:
			// Drain what was already queued.
			for {
				select {
				case ev := <-m.eventCh:
					m.broadcast(ev)
				default:
					return
				}
			}
		}
	}
}

// broadcast sends ev to all subscribers in parallel, each bounded by the send timeout.
func (m *Manager) broadcast(ev *Event) {
	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.sub.Send(ctx, ev)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Warn().Err(err).Msgf("notification: send failed: subscription=%s type=%s room=%s", s.id, ev.Type, ev.RoomID)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("notification: send timed out: subscription=%s type=%s room=%s", s.id, ev.Type, ev.RoomID)
			}
		}(sub)
	}
	wg.Wait()
}

// Close stops the dispatcher after delivering queued events and removes all subscriptions.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
		m.mu.Lock()
		m.subscriptions = make(map[string]*subscription)
		m.mu.Unlock()
	})
}

// LogSubscriber logs every event.
func LogSubscriber() Subscriber {
	return SubscriberFunc(func(ctx context.Context, ev *Event) error {
		e := zlog.Info()
		if ev.Err != nil {
			e = zlog.Warn().Err(ev.Err)
		}
		title := ""
		if ev.Track != nil {
			title = ev.Track.DisplayTitle()
		}
		e.Msgf("notification: %s: room=%s seq=%d title=%s position=%d loop=%t",
			ev.Type, ev.RoomID, ev.SequenceNo, title, ev.Position, ev.Loop)
		return nil
	})
}
