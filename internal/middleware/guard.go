package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/metrics"
	"tubeinsight/dashboard/internal/models"
	"tubeinsight/dashboard/internal/rbac"
	"tubeinsight/dashboard/internal/web"
)

var ErrPermissionDenied = errors.New("permission denied")

// DenyMode selects how a guard answers a caller it turns away.
type DenyMode int

const (
	// DenyJSON answers 403 with {"error","code"}.
	DenyJSON DenyMode = iota
	// DenyForbiddenPage renders the Access Denied page.
	DenyForbiddenPage
	// DenyNotFoundPage renders the Not Found page so the route is not
	// revealed, to anonymous visitors as well.
	DenyNotFoundPage
)

// ProfileLoader reads the caller's profile. Any error denies access.
type ProfileLoader interface {
	Get(ctx context.Context, id string) (models.Profile, error)
}

// Guards builds the authorization middleware for one engine.
type Guards struct {
	profiles ProfileLoader
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewGuards(profiles ProfileLoader, m *metrics.Metrics, log zerolog.Logger) *Guards {
	return &Guards{
		profiles: profiles,
		metrics:  m,
		log:      log,
	}
}

// LoginRedirect is the login path that returns the browser to target.
func LoginRedirect(target string) string {
	return "/login?next=" + url.QueryEscape(target)
}

// RequirePage sends visitors without a session to the login page.
func (g *Guards) RequirePage() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentSession(c); !ok {
			c.Redirect(http.StatusFound, LoginRedirect(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAPI answers 401 to requests without a session.
func (g *Guards) RequireAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentSession(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication_required",
				"next":  c.Request.URL.RequestURI(),
			})
			return
		}
		c.Next()
	}
}

// RequirePermission lets the request through only when the caller's active
// profile holds perm.
func (g *Guards) RequirePermission(perm rbac.Permission, mode DenyMode) gin.HandlerFunc {
	return g.require(perm.String(), mode, func(p models.Profile) bool {
		return rbac.HasPermission(p.Role, perm)
	})
}

// RequireRole lets the request through only when the caller's active profile
// ranks at or above min.
func (g *Guards) RequireRole(min rbac.Role, mode DenyMode) gin.HandlerFunc {
	return g.require("role:"+min.String(), mode, func(p models.Profile) bool {
		return p.Role.Valid() && rbac.AtLeast(p.Role, min)
	})
}

func (g *Guards) require(requirement string, mode DenyMode, allowed func(models.Profile) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := CurrentSession(c)
		if !ok {
			g.unauthenticated(c, mode)
			return
		}

		profile, err := g.LoadProfile(c, s.UserID)
		if err != nil {
			g.log.Warn().Err(err).Str("user_id", s.UserID).Str("requirement", requirement).Msg("profile lookup failed, denying")
			g.metrics.ObserveDecision(requirement, false)
			g.deny(c, mode, "profile_unavailable")
			return
		}
		if !profile.Active() {
			g.metrics.ObserveDecision(requirement, false)
			g.deny(c, mode, "account_"+string(profile.Status))
			return
		}
		if !allowed(profile) {
			g.log.Info().
				Str("user_id", s.UserID).
				Str("role", profile.Role.String()).
				Str("requirement", requirement).
				Msg("access denied")
			g.metrics.ObserveDecision(requirement, false)
			g.deny(c, mode, "insufficient_permissions")
			return
		}

		g.metrics.ObserveDecision(requirement, true)
		c.Next()
	}
}

// LoadProfile loads the caller's profile once per request.
func (g *Guards) LoadProfile(c *gin.Context, userID string) (models.Profile, error) {
	if p, ok := CurrentProfile(c); ok && p.ID == userID {
		return p, nil
	}
	if g.profiles == nil {
		return models.Profile{}, errors.New("no profile source configured")
	}
	p, err := g.profiles.Get(c.Request.Context(), userID)
	if err != nil {
		return models.Profile{}, err
	}
	c.Set(contextProfile, p)
	return p, nil
}

func (g *Guards) unauthenticated(c *gin.Context, mode DenyMode) {
	switch mode {
	case DenyJSON:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "authentication_required",
			"next":  c.Request.URL.RequestURI(),
		})
	case DenyNotFoundPage:
		c.HTML(http.StatusNotFound, web.NotFoundPage, nil)
		c.Abort()
	default:
		c.Redirect(http.StatusFound, LoginRedirect(c.Request.URL.RequestURI()))
		c.Abort()
	}
}

func (g *Guards) deny(c *gin.Context, mode DenyMode, code string) {
	_ = c.Error(ErrPermissionDenied)
	switch mode {
	case DenyNotFoundPage:
		c.HTML(http.StatusNotFound, web.NotFoundPage, nil)
	case DenyForbiddenPage:
		c.HTML(http.StatusForbidden, web.DeniedPage, nil)
	default:
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
			"code":  code,
		})
	}
	c.Abort()
}
