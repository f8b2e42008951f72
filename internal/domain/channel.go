package domain

import "context"

// Responder delivers the terminal outcome of one pipeline run on a transport.
// Implementations must not panic on transport failures; they log and return an error instead.
type Responder interface {
	Send(ctx context.Context, content string) error
	Error(ctx context.Context, err error) error
}

// Channel is a long-running transport client (Discord, Twitter, HTTP, ...).
// Start publishes inbound traffic to bus and blocks until ctx ends.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
}
