package downloader

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/utils"
)

const subscriberBuffer = 256

// Bus is the single typed event channel the engine publishes on. The
// presentation layer and notification dispatcher subscribe here instead of
// being wired in as delegate properties.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan model.Event
	nextID int
	log    zerolog.Logger
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan model.Event),
		log:  utils.GetLogger("bus"),
	}
}

// Subscribe registers a consumer and returns its channel plus a cancel
// function. The channel is buffered; consumers that stop draining lose
// events rather than stalling the engine.
func (b *Bus) Subscribe() (<-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan model.Event, subscriberBuffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Bus) Publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn().Str("type", string(ev.Type)).Str("videoId", ev.VideoID).Msg("Dropping event for slow subscriber")
		}
	}
}
