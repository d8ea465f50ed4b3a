// Package watcher distributes session lifecycle events. Every server
// instance tails one Redis stream so that a sign-in, sign-out, refresh or
// profile change observed anywhere triggers revalidation everywhere:
// cached profiles are dropped and open browser tabs are told to refetch.
package watcher

import (
	"fmt"
	"strconv"
	"time"
)

type EventType string

const (
	EventInitialSession EventType = "initial_session"
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
	EventUserUpdated    EventType = "user_updated"
)

func (t EventType) Valid() bool {
	switch t {
	case EventInitialSession, EventSignedIn, EventSignedOut, EventTokenRefreshed, EventUserUpdated:
		return true
	default:
		return false
	}
}

type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

func (e Event) values() map[string]interface{} {
	return map[string]interface{}{
		"id":      e.ID,
		"type":    string(e.Type),
		"user_id": e.UserID,
		"at":      e.At.UnixMilli(),
	}
}

func decodeEvent(values map[string]interface{}) (Event, error) {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}

	e := Event{
		ID:     str("id"),
		Type:   EventType(str("type")),
		UserID: str("user_id"),
	}
	if !e.Type.Valid() {
		return Event{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	if ms, err := strconv.ParseInt(str("at"), 10, 64); err == nil {
		e.At = time.UnixMilli(ms).UTC()
	}
	return e, nil
}
