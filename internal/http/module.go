package http

import (
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a domain module that mounts its own HTTP routes. The router
// stays ignorant of individual endpoints.
type Module interface {
	// Name identifies the module in startup logs.
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries the route groups and middleware a module can mount
// onto.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is the open /api/v1 group.
	V1 *gin.RouterGroup
	// Protected requires a service token.
	Protected *gin.RouterGroup
	// Webhooks is the authenticated, rate-limited provider event ingress.
	Webhooks *gin.RouterGroup
	Config   config.JWTConfig
	// AuthMiddleware enforces the service token on Protected.
	AuthMiddleware gin.HandlerFunc
	// WebhookRateLimiter throttles the event ingress per tenant.
	WebhookRateLimiter *httpkit.WebhookRateLimiter
}
