package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubeinsight/dashboard/internal/cache"
	"tubeinsight/dashboard/internal/cookies"
	"tubeinsight/dashboard/internal/models"
	"tubeinsight/dashboard/internal/rbac"
	"tubeinsight/dashboard/internal/session"
	"tubeinsight/dashboard/internal/web"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type resolverStub struct {
	session session.Session
	err     error
}

func (r resolverStub) Current(context.Context, cookies.Jar) (session.Session, error) {
	return r.session, r.err
}

func signedIn(userID string) SessionResolver {
	return resolverStub{session: session.Session{UserID: userID, AccessToken: "tok"}}
}

func signedOut() SessionResolver {
	return resolverStub{err: session.ErrSessionAbsent}
}

type profilesStub struct {
	calls int
	fn    func(id string) (models.Profile, error)
}

func (p *profilesStub) Get(_ context.Context, id string) (models.Profile, error) {
	p.calls++
	return p.fn(id)
}

func profileWith(role rbac.Role, status models.ProfileStatus) *profilesStub {
	return &profilesStub{fn: func(id string) (models.Profile, error) {
		return models.Profile{ID: id, Role: role, Status: status}, nil
	}}
}

func newGuardEngine(t *testing.T, resolver SessionResolver, profiles ProfileLoader, mount func(r *gin.Engine, g *Guards)) *gin.Engine {
	t.Helper()
	tmpl, err := web.Templates()
	require.NoError(t, err)

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.Use(Session(resolver, zerolog.Nop()))
	mount(r, NewGuards(profiles, nil, zerolog.Nop()))
	return r
}

func ok(c *gin.Context) { c.String(http.StatusOK, "ok") }

func serve(r *gin.Engine, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestRequirePageRedirectsToLoginWithNext(t *testing.T) {
	r := newGuardEngine(t, signedOut(), nil, func(r *gin.Engine, g *Guards) {
		r.GET("/history", g.RequirePage(), ok)
	})

	rec := serve(r, http.MethodGet, "/history?page=2")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fhistory%3Fpage%3D2", rec.Header().Get("Location"))
}

func TestRequirePagePassesWithSession(t *testing.T) {
	r := newGuardEngine(t, signedIn("u1"), nil, func(r *gin.Engine, g *Guards) {
		r.GET("/history", g.RequirePage(), ok)
	})

	rec := serve(r, http.MethodGet, "/history")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAPIAnswers401(t *testing.T) {
	r := newGuardEngine(t, signedOut(), nil, func(r *gin.Engine, g *Guards) {
		r.GET("/admin/users", g.RequireAPI(), ok)
	})

	rec := serve(r, http.MethodGet, "/admin/users?page=1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication_required", body["error"])
	assert.Equal(t, "/admin/users?page=1", body["next"])
}

func TestRequirePermissionAllowsHolder(t *testing.T) {
	profiles := profileWith(rbac.RoleContentModerator, models.ProfileStatusActive)
	r := newGuardEngine(t, signedIn("u1"), profiles, func(r *gin.Engine, g *Guards) {
		r.GET("/admin/users", g.RequirePermission(rbac.PermViewUsers, DenyJSON), func(c *gin.Context) {
			p, found := CurrentProfile(c)
			require.True(t, found)
			c.String(http.StatusOK, p.Role.String())
		})
	})

	rec := serve(r, http.MethodGet, "/admin/users")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "content_moderator", rec.Body.String())
}

func TestRequirePermissionDeniesJSON(t *testing.T) {
	r := newGuardEngine(t, signedIn("u1"), profileWith(rbac.RoleAnalyst, models.ProfileStatusActive), func(r *gin.Engine, g *Guards) {
		r.GET("/admin/users", g.RequirePermission(rbac.PermViewUsers, DenyJSON), ok)
	})

	rec := serve(r, http.MethodGet, "/admin/users")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_permissions", body["code"])
	assert.NotEmpty(t, body["error"])
}

func TestRequirePermissionDenyPages(t *testing.T) {
	r := newGuardEngine(t, signedIn("u1"), profileWith(rbac.RoleUser, models.ProfileStatusActive), func(r *gin.Engine, g *Guards) {
		r.GET("/console/users", g.RequirePermission(rbac.PermViewUsers, DenyForbiddenPage), ok)
		r.GET("/console/system", g.RequirePermission(rbac.PermViewSystemHealth, DenyNotFoundPage), ok)
	})

	rec := serve(r, http.MethodGet, "/console/users")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access Denied")

	rec = serve(r, http.MethodGet, "/console/system")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}

func TestRequirePermissionFailsClosedOnLookupError(t *testing.T) {
	profiles := &profilesStub{fn: func(string) (models.Profile, error) {
		return models.Profile{}, errors.Join(cache.ErrProfileLookup, errors.New("db down"))
	}}
	reached := false
	r := newGuardEngine(t, signedIn("u1"), profiles, func(r *gin.Engine, g *Guards) {
		r.GET("/admin/analytics/users", g.RequirePermission(rbac.PermViewAnalytics, DenyJSON), func(c *gin.Context) {
			reached = true
		})
	})

	rec := serve(r, http.MethodGet, "/admin/analytics/users")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)
	assert.Contains(t, rec.Body.String(), "profile_unavailable")
}

func TestRequirePermissionDeniesInactiveAccount(t *testing.T) {
	r := newGuardEngine(t, signedIn("u1"), profileWith(rbac.RoleSuperAdmin, models.ProfileStatusSuspended), func(r *gin.Engine, g *Guards) {
		r.GET("/admin/users", g.RequirePermission(rbac.PermViewUsers, DenyJSON), ok)
	})

	rec := serve(r, http.MethodGet, "/admin/users")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "account_suspended")
}

func TestRequirePermissionUnknownRoleDenied(t *testing.T) {
	r := newGuardEngine(t, signedIn("u1"), profileWith(rbac.RoleUnknown, models.ProfileStatusActive), func(r *gin.Engine, g *Guards) {
		r.GET("/admin/users", g.RequirePermission(rbac.PermViewUsers, DenyJSON), ok)
	})

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin/users").Code)
}

func TestRequirePermissionWithoutSession(t *testing.T) {
	r := newGuardEngine(t, signedOut(), profileWith(rbac.RoleSuperAdmin, models.ProfileStatusActive), func(r *gin.Engine, g *Guards) {
		r.GET("/admin/users", g.RequirePermission(rbac.PermViewUsers, DenyJSON), ok)
		r.GET("/console/users", g.RequirePermission(rbac.PermViewUsers, DenyForbiddenPage), ok)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin/users").Code)
	rec := serve(r, http.MethodGet, "/console/users")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fconsole%2Fusers", rec.Header().Get("Location"))
}

func TestNotFoundModeHidesRouteFromAnonymous(t *testing.T) {
	r := newGuardEngine(t, signedOut(), profileWith(rbac.RoleSuperAdmin, models.ProfileStatusActive), func(r *gin.Engine, g *Guards) {
		r.GET("/console/system", g.RequirePermission(rbac.PermViewSystemHealth, DenyNotFoundPage), ok)
	})

	rec := serve(r, http.MethodGet, "/console/system")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		role rbac.Role
		want int
	}{
		{rbac.RoleUser, http.StatusForbidden},
		{rbac.RoleAnalyst, http.StatusForbidden},
		{rbac.RoleContentModerator, http.StatusOK},
		{rbac.RoleSuperAdmin, http.StatusOK},
		{rbac.RoleUnknown, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.role.String(), func(t *testing.T) {
			r := newGuardEngine(t, signedIn("u1"), profileWith(tc.role, models.ProfileStatusActive), func(r *gin.Engine, g *Guards) {
				r.GET("/admin/moderation/analyses", g.RequireRole(rbac.RoleContentModerator, DenyJSON), ok)
			})
			assert.Equal(t, tc.want, serve(r, http.MethodGet, "/admin/moderation/analyses").Code)
		})
	}
}

func TestStackedGuardsLoadProfileOnce(t *testing.T) {
	profiles := profileWith(rbac.RoleSuperAdmin, models.ProfileStatusActive)
	r := newGuardEngine(t, signedIn("u1"), profiles, func(r *gin.Engine, g *Guards) {
		r.GET("/admin/system/audit-logs",
			g.RequirePermission(rbac.PermViewSystemHealth, DenyJSON),
			g.RequireRole(rbac.RoleSuperAdmin, DenyJSON),
			ok)
	})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/admin/system/audit-logs").Code)
	assert.Equal(t, 1, profiles.calls)
}
