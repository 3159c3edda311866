// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"leadgen_backend/internal/events"
	"leadgen_backend/platform/config"
	"leadgen_backend/platform/httpkit"
	"leadgen_backend/platform/logger"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.AppConfig
	config.HTTPConfig
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration.
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// RateLimiter is the shared fixed-window limiter applied to all routes.
	RateLimiter *httpkit.RedisRateLimiter
	// IngestLimiter is the in-process limiter layered onto the intake routes.
	IngestLimiter *httpkit.IPRateLimiter
	// EventBus is the domain event bus for cross-module communication.
	EventBus events.Bus
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
