// Package cookiestest provides an in-memory cookies.Jar for tests of code
// that reads and writes session cookies.
package cookiestest

import (
	"context"
	"sync"
	"time"

	"tubeinsight/dashboard/internal/cookies"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

// Jar keeps cookies in process memory. It is safe for concurrent use.
type Jar struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ cookies.Jar = (*Jar)(nil)

func NewJar() *Jar {
	return &Jar{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (j *Jar) Get(_ context.Context, name string) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	e, ok := j.entries[name]
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && !j.now().Before(e.expires) {
		return "", false
	}
	return e.value, true
}

func (j *Jar) Set(_ context.Context, name, value string, opts cookies.Options) error {
	e := memoryEntry{value: value}
	if opts.MaxAge > 0 {
		e.expires = j.now().Add(opts.MaxAge)
	}

	j.mu.Lock()
	j.entries[name] = e
	j.mu.Unlock()
	return nil
}

func (j *Jar) Remove(_ context.Context, name string, _ cookies.Options) error {
	j.mu.Lock()
	delete(j.entries, name)
	j.mu.Unlock()
	return nil
}
