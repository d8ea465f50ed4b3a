package cookies

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestJarReadsInboundCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: "abc"})
	jar := NewRequestJar(req, httptest.NewRecorder(), zerolog.Nop())

	v, ok := jar.Get(context.Background(), "sb-access-token")
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok = jar.Get(context.Background(), "missing")
	assert.False(t, ok)
}

func TestRequestJarSetWritesHeaderAndIsVisible(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	jar := NewRequestJar(req, rec, zerolog.Nop())

	err := jar.Set(context.Background(), "token", "v1", Options{MaxAge: time.Hour, HTTPOnly: true, Secure: true, SameSite: http.SameSiteLaxMode})
	require.NoError(t, err)

	v, ok := jar.Get(context.Background(), "token")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Name)
	assert.Equal(t, "/", cookies[0].Path)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 3600, cookies[0].MaxAge)
}

func TestRequestJarRemove(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "old"})
	rec := httptest.NewRecorder()
	jar := NewRequestJar(req, rec, zerolog.Nop())

	require.NoError(t, jar.Remove(context.Background(), "token", Options{}))

	_, ok := jar.Get(context.Background(), "token")
	assert.False(t, ok)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestRequestJarDropsWriteAfterHeadersCommitted(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	jar := NewRequestJar(c.Request, c.Writer, zerolog.Nop())

	c.String(http.StatusOK, "body")

	err := jar.Set(context.Background(), "token", "late", Options{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"token"}, jar.Dropped())
	assert.Empty(t, rec.Result().Cookies())

	_, ok := jar.Get(context.Background(), "token")
	assert.False(t, ok)
}

func TestJarImplementations(t *testing.T) {
	var _ Jar = (*RequestJar)(nil)
}
