// Package http wires the domain modules onto the API server.
package http

import (
	"context"

	"voicedesk_backend/internal/events"
	"voicedesk_backend/platform/config"
	"voicedesk_backend/platform/logger"
)

// RouterConfig is the slice of configuration the router needs.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker answers the readiness probe, typically a DB ping.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the initialized dependencies the router composes. main.go builds
// it and hands it to router.New.
type App struct {
	Config   RouterConfig
	Logger   *logger.Logger
	Health   HealthChecker
	EventBus events.Bus
	Modules  []Module
}
