package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/cookies"
	"tubeinsight/dashboard/internal/models"
	"tubeinsight/dashboard/internal/session"
)

const (
	contextJar     = "cookie_jar"
	contextSession = "current_session"
	contextProfile = "current_profile"
)

// SessionResolver yields the current session, refreshing it if needed.
type SessionResolver interface {
	Current(ctx context.Context, jar cookies.Jar) (session.Session, error)
}

// Session resolves the cookie session once per request and stores it in the
// gin context. It never aborts; guards decide what an absent session means.
func Session(resolver SessionResolver, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		jar := cookies.NewRequestJar(c.Request, c.Writer, log)
		c.Set(contextJar, jar)

		if s, err := resolver.Current(c.Request.Context(), jar); err == nil {
			c.Set(contextSession, s)
		}

		c.Next()

		if dropped := jar.Dropped(); len(dropped) > 0 {
			log.Debug().Strs("cookies", dropped).Str("path", c.Request.URL.Path).Msg("late cookie writes dropped")
		}
	}
}

// Jar returns the request's cookie jar, creating one when the Session
// middleware did not run.
func Jar(c *gin.Context) cookies.Jar {
	if v, ok := c.Get(contextJar); ok {
		if jar, ok := v.(cookies.Jar); ok {
			return jar
		}
	}
	jar := cookies.NewRequestJar(c.Request, c.Writer, zerolog.Nop())
	c.Set(contextJar, jar)
	return jar
}

func CurrentSession(c *gin.Context) (session.Session, bool) {
	v, ok := c.Get(contextSession)
	if !ok {
		return session.Session{}, false
	}
	s, ok := v.(session.Session)
	return s, ok
}

// SetSession replaces the session seen by later handlers of this request.
func SetSession(c *gin.Context, s session.Session) {
	c.Set(contextSession, s)
}

// ClearSession forgets the session for the rest of this request.
func ClearSession(c *gin.Context) {
	c.Set(contextSession, nil)
}

// CurrentProfile returns the profile loaded by a permission guard.
func CurrentProfile(c *gin.Context) (models.Profile, bool) {
	v, ok := c.Get(contextProfile)
	if !ok {
		return models.Profile{}, false
	}
	p, ok := v.(models.Profile)
	return p, ok
}
