package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/backend"
	"tubeinsight/dashboard/internal/config"
	"tubeinsight/dashboard/internal/metrics"
	"tubeinsight/dashboard/internal/middleware"
	"tubeinsight/dashboard/internal/models"
	"tubeinsight/dashboard/internal/rbac"
	"tubeinsight/dashboard/internal/service"
	"tubeinsight/dashboard/internal/watcher"
)

// ProfileStore reads profiles and drops cached copies.
type ProfileStore interface {
	Get(ctx context.Context, id string) (models.Profile, error)
	Invalidate(ctx context.Context, id string) error
}

// EventPublisher announces session events to every instance.
type EventPublisher interface {
	Publish(ctx context.Context, eventType watcher.EventType, userID string) error
}

// Passthrough forwards a request to the analysis backend.
type Passthrough interface {
	Do(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Auth     *service.AuthService
	Resolver middleware.SessionResolver
	Profiles ProfileStore
	Backend  Passthrough
	Events   EventPublisher
	Hub      *watcher.Hub
	Limiter  *middleware.IPRateLimiter
	Metrics  *metrics.Metrics
	Checks   map[string]HealthCheck
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     *service.AuthService
	resolver middleware.SessionResolver
	guards   *middleware.Guards
	profiles ProfileStore
	backend  Passthrough
	events   EventPublisher
	hub      *watcher.Hub
	limiter  *middleware.IPRateLimiter
	checks   map[string]HealthCheck
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Dependencies) HandlerSet {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit.ExchangePerMinute, cfg.RateLimit.Burst)
	}
	hub := deps.Hub
	if hub == nil {
		hub = watcher.NewHub()
	}

	return HandlerSet{
		log:      log,
		cfg:      cfg,
		auth:     deps.Auth,
		resolver: deps.Resolver,
		guards:   middleware.NewGuards(deps.Profiles, deps.Metrics, log),
		profiles: deps.Profiles,
		backend:  deps.Backend,
		events:   deps.Events,
		hub:      hub,
		limiter:  limiter,
		checks:   deps.Checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.Use(middleware.Session(h.resolver, h.log))

	router.GET("/healthz", h.Health)
	router.GET("/login", h.LoginPage)

	auth := router.Group("/auth")
	{
		auth.GET("/callback", middleware.RateLimit(h.limiter), h.Callback)
		auth.POST("/exchange", middleware.RateLimit(h.limiter), h.ExchangeCode)
		auth.GET("/signin", h.SignIn)
		auth.POST("/signout", h.SignOut)
		auth.GET("/events", h.guards.RequireAPI(), h.Events)
	}

	pages := router.Group("")
	pages.Use(h.guards.RequirePage())
	{
		pages.GET("/", h.Home)
		pages.GET("/dashboard", h.Dashboard)
		pages.GET("/history", h.History)
		pages.GET("/analysis/:id", h.Analysis)
	}

	// Each console guard handles anonymous visitors itself so that a hidden
	// page answers them exactly like an unknown path.
	console := router.Group("/console")
	{
		console.GET("", h.guards.RequireRole(rbac.RoleAnalyst, middleware.DenyForbiddenPage), h.AdminHome)
		console.GET("/users", h.guards.RequirePermission(rbac.PermViewUsers, middleware.DenyForbiddenPage), h.AdminUsers)
		console.GET("/analytics", h.guards.RequirePermission(rbac.PermViewAnalytics, middleware.DenyForbiddenPage), h.AdminAnalytics)
		console.GET("/moderation", h.guards.RequirePermission(rbac.PermModerateContent, middleware.DenyForbiddenPage), h.AdminModeration)
		console.GET("/system", h.guards.RequirePermission(rbac.PermViewSystemHealth, middleware.DenyNotFoundPage), h.AdminSystem)
	}

	api := router.Group("/api")
	api.Use(h.guards.RequireAPI())
	{
		api.GET("/analyses", h.guards.RequirePermission(rbac.PermViewAnalyses, middleware.DenyJSON), h.ListAnalyses)
		api.GET("/analyses/:id", h.guards.RequirePermission(rbac.PermViewAnalyses, middleware.DenyJSON), h.GetAnalysis)
		api.POST("/analyze-video", h.guards.RequirePermission(rbac.PermCreateAnalyses, middleware.DenyJSON), h.AnalyzeVideo)
	}

	h.registerAdminAPI(router.Group("/admin"))
}
