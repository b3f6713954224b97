package infrastructure

import "context"

// Server is a long-running component managed by App: listeners, subscribers and workers.
// Start blocks until ctx is cancelled or the component fails.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
