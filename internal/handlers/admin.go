package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tubeinsight/dashboard/internal/middleware"
	"tubeinsight/dashboard/internal/models"
	"tubeinsight/dashboard/internal/rbac"
	"tubeinsight/dashboard/internal/repository"
	"tubeinsight/dashboard/internal/watcher"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

func (h HandlerSet) registerAdminAPI(api *gin.RouterGroup) {
	g := h.guards
	api.Use(g.RequireAPI())

	toBackend := h.proxy(adminBackendPath)

	api.GET("/users", g.RequirePermission(rbac.PermViewUsers, middleware.DenyJSON), h.ListUsers)
	api.GET("/users/:userId", g.RequireRole(rbac.RoleContentModerator, middleware.DenyJSON), toBackend)
	api.PUT("/users/:userId/:attribute", h.attributeGuard(), h.UpdateUser)

	api.GET("/analytics/users", g.RequirePermission(rbac.PermViewAnalytics, middleware.DenyJSON), toBackend)
	api.GET("/analytics/analyses", g.RequirePermission(rbac.PermViewAnalytics, middleware.DenyJSON), toBackend)

	moderate := g.RequirePermission(rbac.PermModerateContent, middleware.DenyJSON)
	api.GET("/moderation/analyses", moderate, toBackend)
	api.GET("/moderation/analyses/:analysisId", moderate, toBackend)
	api.PUT("/moderation/analyses/:analysisId", moderate, toBackend)

	superAdmin := g.RequireRole(rbac.RoleSuperAdmin, middleware.DenyJSON)
	api.GET("/system/audit-logs", superAdmin, toBackend)
	api.GET("/system/user-rate-limits", superAdmin, toBackend)
	api.PUT("/system/user-rate-limits/:userId", superAdmin, toBackend)
	api.GET("/system/api-usage", g.RequirePermission(rbac.PermViewAPIUsage, middleware.DenyJSON), toBackend)
	api.GET("/system/health", g.RequirePermission(rbac.PermViewSystemHealth, middleware.DenyJSON), toBackend)
}

// attributeGuard picks the modify permission for the attribute being
// written. Attributes without one are not routes.
func (h HandlerSet) attributeGuard() gin.HandlerFunc {
	byAttribute := map[string]gin.HandlerFunc{
		"role":   h.guards.RequirePermission(rbac.PermModifyUserRole, middleware.DenyJSON),
		"status": h.guards.RequirePermission(rbac.PermModifyUserStatus, middleware.DenyJSON),
	}
	return func(c *gin.Context) {
		guard, ok := byAttribute[c.Param("attribute")]
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		guard(c)
	}
}

// adminBackendPath maps /admin/<rest> onto the backend's /v1/admin/<rest>.
func adminBackendPath(c *gin.Context) string {
	return "/v1" + c.Request.URL.Path
}

// ListUsers forwards the user listing with normalized pagination.
func (h HandlerSet) ListUsers(c *gin.Context) {
	page, perPage, ok := normalizePagination(c.Query("page"), c.Query("per_page"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "code": "invalid_parameters"})
		return
	}

	query := c.Request.URL.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	h.forward(c, http.MethodGet, "/v1/admin/users", query, nil)
}

// normalizePagination clamps page to >= 1 and per_page to 1..100 (default
// 10). Non-numeric values are rejected.
func normalizePagination(pageParam, perPageParam string) (int, int, bool) {
	page, perPage := 1, defaultPerPage
	if pageParam != "" {
		v, err := strconv.Atoi(pageParam)
		if err != nil {
			return 0, 0, false
		}
		page = max(1, v)
	}
	if perPageParam != "" {
		v, err := strconv.Atoi(perPageParam)
		if err != nil {
			return 0, 0, false
		}
		perPage = min(maxPerPage, max(1, v))
	}
	return page, perPage, true
}

type updateUserRequest struct {
	Role   *string `json:"role"`
	Status *string `json:"status"`
	Reason string  `json:"reason"`
}

// UpdateUser changes a user's role or status. The caller already holds the
// matching modify permission; this handler adds the checks that depend on
// the target: no self-modification, the target must exist, and the caller
// must outrank it.
func (h HandlerSet) UpdateUser(c *gin.Context) {
	attribute := c.Param("attribute")
	actor, ok := middleware.CurrentProfile(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions", "code": "profile_unavailable"})
		return
	}

	raw, ok := readBody(c)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}
	if msg, valid := validateUpdate(attribute, req); !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "invalid_" + attribute})
		return
	}

	targetID := c.Param("userId")
	if targetID == actor.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot change your own " + attribute, "code": "self_modification"})
		return
	}
	if _, err := uuid.Parse(targetID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	target, err := h.profiles.Get(c.Request.Context(), targetID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.log.Warn().Err(err).Str("target_id", targetID).Msg("target profile lookup failed, denying")
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions", "code": "profile_unavailable"})
		return
	}

	if !rbac.CanModify(actor.Role, target.Role) {
		h.log.Info().
			Str("user_id", actor.ID).
			Str("role", actor.Role.String()).
			Str("target_id", target.ID).
			Str("target_role", target.Role.String()).
			Msg("cross-user modification denied")
		_ = c.Error(middleware.ErrPermissionDenied)
		c.JSON(http.StatusForbidden, gin.H{
			"error": "You do not have permission to modify users with this role",
			"code":  "role_permission_denied",
		})
		return
	}

	resp, forwarded := h.forward(c, http.MethodPut, "/v1/admin/users/"+targetID+"/"+attribute, nil, raw)
	if !forwarded || resp.Status >= http.StatusMultipleChoices {
		return
	}

	ctx := c.Request.Context()
	if err := h.profiles.Invalidate(ctx, targetID); err != nil {
		h.log.Warn().Err(err).Str("target_id", targetID).Msg("profile cache invalidation failed")
	}
	if h.events != nil {
		if err := h.events.Publish(ctx, watcher.EventUserUpdated, targetID); err != nil {
			h.log.Warn().Err(err).Str("target_id", targetID).Msg("publish user_updated failed")
		}
	}
	h.log.Info().
		Str("user_id", actor.ID).
		Str("target_id", targetID).
		Str("attribute", attribute).
		Msg("user updated")
}

func validateUpdate(attribute string, req updateUserRequest) (string, bool) {
	switch attribute {
	case "role":
		if req.Role == nil || !rbac.ParseRole(*req.Role).Valid() {
			return "Invalid role specified", false
		}
	case "status":
		if req.Status == nil {
			return "Invalid status specified", false
		}
		if _, ok := models.ParseProfileStatus(*req.Status); !ok {
			return "Invalid status specified", false
		}
	default:
		return "Unsupported attribute", false
	}
	return "", true
}
