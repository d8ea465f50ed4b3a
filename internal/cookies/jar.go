// Package cookies adapts the places a session cookie can live behind one
// Jar interface.
//
// RequestJar serves the server tier: it reads from an inbound request and
// writes Set-Cookie headers on the response. Once the response headers are
// committed a write cannot reach the browser any more; such writes are
// dropped without error and the next navigation's session pass rewrites the
// cookie. Package cookiestest holds an in-memory Jar for tests.
package cookies

import (
	"context"
	"net/http"
	"time"
)

// Options carries the attributes of a cookie write.
type Options struct {
	Path     string
	Domain   string
	MaxAge   time.Duration
	SameSite http.SameSite
	Secure   bool
	HTTPOnly bool
}

// Jar reads and writes named cookie values. Get never fails: a missing
// cookie reports ok=false.
type Jar interface {
	Get(ctx context.Context, name string) (string, bool)
	Set(ctx context.Context, name, value string, opts Options) error
	Remove(ctx context.Context, name string, opts Options) error
}

func (o Options) cookie(name, value string) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if o.MaxAge > 0 {
		c.MaxAge = int(o.MaxAge / time.Second)
		c.Expires = time.Now().Add(o.MaxAge).UTC()
	}
	return c
}
