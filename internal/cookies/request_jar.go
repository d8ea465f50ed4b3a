package cookies

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// writtenReporter is implemented by gin.ResponseWriter.
type writtenReporter interface {
	Written() bool
}

// RequestJar is a Jar bound to one request/response cycle.
type RequestJar struct {
	r   *http.Request
	w   http.ResponseWriter
	log zerolog.Logger

	mu      sync.Mutex
	pending map[string]*http.Cookie
	dropped []string
}

func NewRequestJar(r *http.Request, w http.ResponseWriter, log zerolog.Logger) *RequestJar {
	return &RequestJar{
		r:       r,
		w:       w,
		log:     log,
		pending: make(map[string]*http.Cookie),
	}
}

// Get prefers values written earlier in this cycle so a refreshed token is
// visible to later handlers of the same request.
func (j *RequestJar) Get(_ context.Context, name string) (string, bool) {
	j.mu.Lock()
	if c, ok := j.pending[name]; ok {
		j.mu.Unlock()
		if c.MaxAge < 0 {
			return "", false
		}
		return c.Value, true
	}
	j.mu.Unlock()

	c, err := j.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (j *RequestJar) Set(_ context.Context, name, value string, opts Options) error {
	j.write(opts.cookie(name, value))
	return nil
}

func (j *RequestJar) Remove(_ context.Context, name string, opts Options) error {
	c := opts.cookie(name, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	j.write(c)
	return nil
}

// Dropped lists cookie names whose writes arrived after the headers were
// committed.
func (j *RequestJar) Dropped() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.dropped...)
}

func (j *RequestJar) write(c *http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.committed() {
		j.dropped = append(j.dropped, c.Name)
		j.log.Debug().Str("cookie", c.Name).Msg("cookie write after headers committed, dropped")
		return
	}

	j.pending[c.Name] = c
	http.SetCookie(j.w, c)
}

func (j *RequestJar) committed() bool {
	if wr, ok := j.w.(writtenReporter); ok {
		return wr.Written()
	}
	return false
}
