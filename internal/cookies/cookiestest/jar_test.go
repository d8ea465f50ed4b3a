package cookiestest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubeinsight/dashboard/internal/cookies"
)

func TestJarExpiry(t *testing.T) {
	jar := NewJar()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jar.now = func() time.Time { return now }

	require.NoError(t, jar.Set(context.Background(), "a", "1", cookies.Options{MaxAge: time.Minute}))
	v, ok := jar.Get(context.Background(), "a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	now = now.Add(2 * time.Minute)
	_, ok = jar.Get(context.Background(), "a")
	assert.False(t, ok)
}

func TestJarRemove(t *testing.T) {
	jar := NewJar()
	require.NoError(t, jar.Set(context.Background(), "a", "1", cookies.Options{}))
	require.NoError(t, jar.Remove(context.Background(), "a", cookies.Options{}))

	_, ok := jar.Get(context.Background(), "a")
	assert.False(t, ok)
}
