package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubeinsight/dashboard/internal/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(config.BackendConfig{BaseURL: baseURL, Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestDoForwardsBearerAndReturnsVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/admin/users", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/")
	resp, err := c.Do(context.Background(), Request{
		Path:        "/v1/admin/users",
		Query:       url.Values{"page": {"2"}},
		BearerToken: "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"data":[]}`, string(resp.Body))
}

func TestDoSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"role":"analyst"}`, string(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv.URL).Do(context.Background(), Request{
		Method:      http.MethodPut,
		Path:        "v1/admin/users/u2/role",
		Body:        strings.NewReader(`{"role":"analyst"}`),
		ContentType: "application/json",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestDoUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := newTestClient(t, addr).Do(context.Background(), Request{Path: "/v1/admin/users"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDoInvalidMethod(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Do(context.Background(), Request{Method: "BAD METHOD", Path: "/x"})
	assert.ErrorIs(t, err, ErrRequest)
}

func TestHealth(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	assert.NoError(t, c.Health(context.Background()))

	status = http.StatusServiceUnavailable
	assert.ErrorIs(t, c.Health(context.Background()), ErrUnavailable)
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient(config.BackendConfig{BaseURL: "backend:5000"}, zerolog.Nop())
	assert.Error(t, err)
}
