package events

import (
	"sync"

	"github.com/rs/zerolog"

	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/adapter"
	"ai-transform-service/internal/infra/metrics"
)

var _ adapter.ProgressSink = (*Broker)(nil)

const defaultBuffer = 16

// Broker fans progress events out to per-session subscribers. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
	log    *zerolog.Logger
}

type subscription struct {
	ch chan model.ProgressEvent
}

func NewBroker(buffer int, logger *zerolog.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	l := logger.With().Str("component", "EventBroker").Logger()
	return &Broker{subs: make(map[string]map[*subscription]struct{}), buffer: buffer, log: &l}
}

// Subscribe returns a channel of events for sessionID and a cancel func that
// must be called to release it. The channel is closed on cancel.
func (b *Broker) Subscribe(sessionID string) (<-chan model.ProgressEvent, func()) {
	s := &subscription{ch: make(chan model.ProgressEvent, b.buffer)}

	b.mu.Lock()
	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[*subscription]struct{})
		b.subs[sessionID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()
	metrics.AddEventSubscribers(1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[sessionID], s)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(s.ch)
			b.mu.Unlock()
			metrics.AddEventSubscribers(-1)
		})
	}
	return s.ch, cancel
}

func (b *Broker) Publish(ev model.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[ev.SessionID] {
		select {
		case s.ch <- ev:
		default:
			metrics.IncEventDropped()
			b.log.Debug().Str("session_id", ev.SessionID).Str("type", string(ev.Type)).Msg("dropped progress event for slow subscriber")
		}
	}
}

// Subscribers reports the number of open subscriptions for a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
