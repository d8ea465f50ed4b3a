package watcher

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

const subscriberBuffer = 16

// Hub fans events out to the browser streams open on this instance.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for userID. The returned func unsubscribes
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers e to every listener of e.UserID. A listener whose
// buffer is full misses the event; the next one triggers the same refetch.
func (h *Hub) Broadcast(e Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subs[e.UserID] {
		select {
		case ch <- e:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of listeners for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// ProfileInvalidator drops cached profile data.
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// NewRevalidator returns the default reaction to a session event: forget the
// cached profile, then notify the user's open browser streams.
func NewRevalidator(profiles ProfileInvalidator, hub *Hub, log zerolog.Logger) Revalidator {
	return RevalidatorFunc(func(ctx context.Context, e Event) error {
		if profiles != nil && e.UserID != "" {
			if err := profiles.Invalidate(ctx, e.UserID); err != nil {
				return err
			}
		}
		n := hub.Broadcast(e)
		log.Debug().
			Str("event", string(e.Type)).
			Str("user_id", e.UserID).
			Int("streams", n).
			Msg("session event revalidated")
		return nil
	})
}
