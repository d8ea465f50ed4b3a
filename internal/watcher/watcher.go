package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Revalidator reacts to one session event. Implementations must be
// idempotent: the same event may be handled again after a restart.
type Revalidator interface {
	Revalidate(ctx context.Context, e Event) error
}

type RevalidatorFunc func(ctx context.Context, e Event) error

func (f RevalidatorFunc) Revalidate(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Watcher tails the event stream and hands each event, in stream order, to
// its Revalidator.
type Watcher struct {
	client  *redis.Client
	stream  string
	block   time.Duration
	handler Revalidator
	log     zerolog.Logger

	retryDelay time.Duration
	ready      chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatcher(client *redis.Client, stream string, block time.Duration, handler Revalidator, log zerolog.Logger) *Watcher {
	if block <= 0 {
		block = 5 * time.Second
	}
	return &Watcher{
		client:  client,
		stream:  stream,
		block:   block,
		handler: handler,
		log:     log.With().Str("component", "watcher").Logger(),

		retryDelay: time.Second,
		ready:      make(chan struct{}),
	}
}

// Start subscribes to events published from now on and blocks until ctx is
// cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		cancel()
		return errors.New("watcher already started")
	}
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	defer close(done)
	defer cancel()

	lastID, err := w.subscribe(ctx)
	if err != nil {
		w.log.Info().Msg("session watcher stopped before subscribing")
		return err
	}
	w.log.Info().Str("stream", w.stream).Str("from", lastID).Msg("session watcher subscribed")
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("session watcher unsubscribed")
			return ctx.Err()
		default:
		}

		next, err := w.read(ctx, lastID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("stream read error")
			select {
			case <-ctx.Done():
			case <-time.After(w.retryDelay):
			}
			continue
		}
		lastID = next
	}
}

// Ready is closed once the watcher is subscribed.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Close unsubscribes and waits for the read loop to exit.
func (w *Watcher) Close() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// subscribe resolves the stream tail, retrying until Redis answers or ctx
// ends.
func (w *Watcher) subscribe(ctx context.Context) (string, error) {
	for {
		lastID, err := w.tail(ctx)
		if err == nil {
			return lastID, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		w.log.Error().Err(err).Str("stream", w.stream).Msg("stream tail lookup failed, retrying")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(w.retryDelay):
		}
	}
}

// tail returns the id of the newest entry so only later events are delivered.
func (w *Watcher) tail(ctx context.Context) (string, error) {
	msgs, err := w.client.XRevRangeN(ctx, w.stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func (w *Watcher) read(ctx context.Context, lastID string) (string, error) {
	result, err := w.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{w.stream, lastID},
		Count:   100,
		Block:   w.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return lastID, nil
		}
		return lastID, err
	}

	for _, stream := range result {
		for _, msg := range stream.Messages {
			lastID = msg.ID
			w.handle(ctx, msg)
		}
	}
	return lastID, nil
}

func (w *Watcher) handle(ctx context.Context, msg redis.XMessage) {
	e, err := decodeEvent(msg.Values)
	if err != nil {
		w.log.Warn().Err(err).Str("message_id", msg.ID).Msg("skipping malformed event")
		return
	}
	if err := w.handler.Revalidate(ctx, e); err != nil {
		w.log.Error().
			Err(err).
			Str("message_id", msg.ID).
			Str("event", string(e.Type)).
			Str("user_id", e.UserID).
			Msg("revalidation failed")
	}
}
