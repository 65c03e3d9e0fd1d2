package platform

import (
	"context"
	"os/signal"
)

// NewShutdownContext returns a context cancelled on the platform's stop signals.
// The server uses it for graceful shutdown and the CLI to abandon a running download.
func NewShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}
