// Package events re-exports the platform event bus so modules can
// import their event types and the bus from one place. The
// implementation lives in platform/events.
package events

import (
	platformevents "leadgen_backend/platform/events"
	"leadgen_backend/platform/logger"
)

// InMemoryBus is a type alias to the platform InMemoryBus.
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus creates the in-process bus both binaries publish on.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
