package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubeinsight/dashboard/internal/watcher"
)

func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			return b.String()
		}
		b.WriteString(line)
	}
}

func TestEventsStreamsSessionChanges(t *testing.T) {
	h := newHarness(t, userID, directory())
	srv := httptest.NewServer(h.engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/auth/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	r := bufio.NewReader(resp.Body)
	first := readEvent(t, r)
	assert.Contains(t, first, "event:session")
	assert.Contains(t, first, `"type":"initial_session"`)
	assert.Contains(t, first, userID)

	// Events for other users are not delivered.
	h.hub.Broadcast(watcher.Event{ID: "e0", Type: watcher.EventUserUpdated, UserID: analystID})
	require.Equal(t, 1, h.hub.Broadcast(watcher.Event{ID: "e1", Type: watcher.EventUserUpdated, UserID: userID}))
	second := readEvent(t, r)
	assert.Contains(t, second, `"type":"user_updated"`)
	assert.NotContains(t, second, analystID)

	h.hub.Broadcast(watcher.Event{ID: "e2", Type: watcher.EventSignedOut, UserID: userID})
	third := readEvent(t, r)
	assert.Contains(t, third, `"type":"signed_out"`)

	_, err = r.ReadString('\n')
	assert.Error(t, err, "stream ends after signed_out")
}

func TestEventsRequireSession(t *testing.T) {
	h := newHarness(t, "", nil)

	rec := h.do(http.MethodGet, "/auth/events", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, h.hub.Subscribers(""))
}
