package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tubeinsight/dashboard/internal/middleware"
	"tubeinsight/dashboard/internal/rbac"
	"tubeinsight/dashboard/internal/web"
)

func (h HandlerSet) Home(c *gin.Context) {
	c.Redirect(http.StatusFound, "/dashboard")
}

func (h HandlerSet) Dashboard(c *gin.Context) {
	h.renderShell(c, "Dashboard", "dashboard", "/api/analyses")
}

func (h HandlerSet) History(c *gin.Context) {
	h.renderShell(c, "History", "history", "/api/analyses")
}

func (h HandlerSet) Analysis(c *gin.Context) {
	h.renderShell(c, "Analysis", "analysis", "/api/analyses/"+c.Param("id"))
}

func (h HandlerSet) AdminHome(c *gin.Context) {
	h.renderShell(c, "Admin", "admin", "/admin/analytics/users")
}

func (h HandlerSet) AdminUsers(c *gin.Context) {
	h.renderShell(c, "Users", "admin-users", "/admin/users")
}

func (h HandlerSet) AdminAnalytics(c *gin.Context) {
	h.renderShell(c, "Analytics", "admin-analytics", "/admin/analytics/analyses")
}

func (h HandlerSet) AdminModeration(c *gin.Context) {
	h.renderShell(c, "Moderation", "admin-moderation", "/admin/moderation/analyses")
}

func (h HandlerSet) AdminSystem(c *gin.Context) {
	h.renderShell(c, "System", "admin-system", "/admin/system/health")
}

// renderShell renders the page chrome; the page body loads resource from
// the browser. A profile that cannot be read only hides the admin link.
func (h HandlerSet) renderShell(c *gin.Context, title, page, resource string) {
	s, _ := middleware.CurrentSession(c)

	view := gin.H{
		"Title":    title,
		"Page":     page,
		"Resource": resource,
		"Email":    s.Email,
	}
	if p, err := h.guards.LoadProfile(c, s.UserID); err == nil {
		view["Role"] = p.Role.String()
		view["ShowAdmin"] = p.Active() && p.Role.Valid() && rbac.AtLeast(p.Role, rbac.RoleAnalyst)
	} else {
		h.log.Debug().Err(err).Str("user_id", s.UserID).Msg("profile unavailable for page chrome")
	}

	c.HTML(http.StatusOK, web.ShellPage, view)
}
