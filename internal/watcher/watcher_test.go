package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStream = "auth:events:test"

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Revalidate(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func startWatcher(t *testing.T, client *redis.Client, handler Revalidator) *Watcher {
	t.Helper()
	w := NewWatcher(client, testStream, 50*time.Millisecond, handler, zerolog.Nop())
	go func() { _ = w.Start(context.Background()) }()
	t.Cleanup(w.Close)

	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not subscribe")
	}
	return w
}

func TestWatcherDeliversEventsInOrder(t *testing.T) {
	_, client := newTestClient(t)
	pub := NewPublisher(client, testStream, 100)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, EventSignedIn, "before-start"))

	rec := &recorder{}
	startWatcher(t, client, rec)

	require.NoError(t, pub.Publish(ctx, EventSignedIn, "u1"))
	require.NoError(t, pub.Publish(ctx, EventTokenRefreshed, "u1"))
	require.NoError(t, pub.Publish(ctx, EventSignedOut, "u1"))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)

	got := rec.snapshot()
	assert.Equal(t, EventSignedIn, got[0].Type)
	assert.Equal(t, EventTokenRefreshed, got[1].Type)
	assert.Equal(t, EventSignedOut, got[2].Type)
	for _, e := range got {
		assert.Equal(t, "u1", e.UserID)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.At.IsZero())
	}
}

func TestWatcherRetriesTailUntilRedisAnswers(t *testing.T) {
	mr, client := newTestClient(t)
	mr.SetError("LOADING Redis is loading the dataset in memory")

	rec := &recorder{}
	w := NewWatcher(client, testStream, 50*time.Millisecond, rec, zerolog.Nop())
	w.retryDelay = 10 * time.Millisecond
	go func() { _ = w.Start(context.Background()) }()
	t.Cleanup(w.Close)

	select {
	case <-w.Ready():
		t.Fatal("watcher reported ready while redis was failing")
	case <-time.After(100 * time.Millisecond):
	}

	mr.SetError("")
	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not subscribe after redis recovered")
	}

	pub := NewPublisher(client, testStream, 100)
	require.NoError(t, pub.Publish(context.Background(), EventSignedOut, "u1"))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, EventSignedOut, rec.snapshot()[0].Type)
}

func TestWatcherStopsRetryingWhenCancelled(t *testing.T) {
	mr, client := newTestClient(t)
	mr.SetError("LOADING Redis is loading the dataset in memory")

	w := NewWatcher(client, testStream, 50*time.Millisecond, &recorder{}, zerolog.Nop())
	w.retryDelay = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher kept retrying after cancellation")
	}
}

func TestWatcherSkipsMalformedEvents(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	rec := &recorder{}
	startWatcher(t, client, rec)

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: testStream,
		Values: map[string]interface{}{"type": "password_recovery", "user_id": "u1"},
	}).Err())
	require.NoError(t, NewPublisher(client, testStream, 100).Publish(ctx, EventUserUpdated, "u1"))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, EventUserUpdated, rec.snapshot()[0].Type)
}

func TestWatcherCloseStopsDelivery(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	rec := &recorder{}
	w := startWatcher(t, client, rec)
	w.Close()

	require.NoError(t, NewPublisher(client, testStream, 100).Publish(ctx, EventSignedIn, "u1"))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestWatcherRejectsSecondStart(t *testing.T) {
	_, client := newTestClient(t)
	w := startWatcher(t, client, &recorder{})

	err := w.Start(context.Background())
	assert.Error(t, err)
}

func TestPublisherWithoutClientIsNoop(t *testing.T) {
	pub := NewPublisher(nil, testStream, 10)
	assert.NoError(t, pub.Publish(context.Background(), EventSignedIn, "u1"))
}

func TestDecodeEventRejectsUnknownType(t *testing.T) {
	_, err := decodeEvent(map[string]interface{}{"type": "nope"})
	assert.Error(t, err)

	e, err := decodeEvent(map[string]interface{}{
		"id":      "abc",
		"type":    "signed_in",
		"user_id": "u1",
		"at":      "1700000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), e.At)
}

type invalidatorStub struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *invalidatorStub) Invalidate(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, userID)
	return s.err
}

func TestRevalidatorInvalidatesAndBroadcasts(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe("u1")
	defer unsubscribe()

	inv := &invalidatorStub{}
	rv := NewRevalidator(inv, hub, zerolog.Nop())

	e := Event{ID: "1", Type: EventUserUpdated, UserID: "u1"}
	require.NoError(t, rv.Revalidate(context.Background(), e))

	assert.Equal(t, []string{"u1"}, inv.ids)
	select {
	case got := <-ch:
		assert.Equal(t, e, got)
	default:
		t.Fatal("expected broadcast event")
	}
}

func TestHubScopesEventsPerUser(t *testing.T) {
	hub := NewHub()
	a, unsubA := hub.Subscribe("a")
	b, unsubB := hub.Subscribe("b")
	defer unsubB()

	assert.Equal(t, 1, hub.Broadcast(Event{Type: EventSignedOut, UserID: "a"}))
	assert.Len(t, a, 1)
	assert.Len(t, b, 0)

	unsubA()
	unsubA()
	assert.Equal(t, 0, hub.Subscribers("a"))
	_, open := <-a
	assert.True(t, open, "buffered event still readable")
	_, open = <-a
	assert.False(t, open)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	_, unsub := hub.Subscribe("u1")
	defer unsub()

	for i := 0; i < subscriberBuffer; i++ {
		assert.Equal(t, 1, hub.Broadcast(Event{UserID: "u1"}))
	}
	assert.Equal(t, 0, hub.Broadcast(Event{UserID: "u1"}))
}
