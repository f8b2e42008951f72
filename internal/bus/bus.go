// Package bus carries inbound envelopes from channel clients to the agent loop.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"personabot/internal/domain"
)

const publishTimeout = 10 * time.Second

var (
	// ErrBusFull is reported to an envelope's responder when it cannot be queued in time.
	ErrBusFull = errors.New("message bus full")

	// ErrBusClosed is reported for envelopes published after Close.
	ErrBusClosed = errors.New("message bus closed")
)

// InMemoryBus is a Go-channel based message bus for in-process communication.
type InMemoryBus struct {
	inbound chan domain.Envelope
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		inbound: make(chan domain.Envelope, bufferSize),
		timeout: publishTimeout,
		logger:  logger,
	}
}

// Publish queues env. When the buffer is full it waits up to the publish
// timeout; envelopes that still cannot be queued are rejected through their
// responder rather than silently dropped.
func (b *InMemoryBus) Publish(env domain.Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "source", env.Input.Source)
		b.reject(env, ErrBusClosed)
		return
	}

	select {
	case b.inbound <- env:
		return
	default:
	}

	b.logger.Warn("inbound bus full, waiting...", "source", env.Input.Source, "room", env.Input.RoomID)
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case b.inbound <- env:
		b.logger.Info("envelope delivered after wait", "source", env.Input.Source)
	case <-timer.C:
		b.logger.Error("envelope dropped: bus full",
			"source", env.Input.Source,
			"room", env.Input.RoomID,
			"waited", b.timeout,
		)
		b.reject(env, ErrBusFull)
	}
}

func (b *InMemoryBus) reject(env domain.Envelope, err error) {
	defer env.Finish()
	if env.Responder == nil {
		return
	}
	if rerr := env.Responder.Error(context.Background(), err); rerr != nil {
		b.logger.Error("cannot deliver bus rejection", "err", rerr)
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Envelope {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
