package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"personabot/internal/domain"
	"personabot/internal/metrics"
)

type responseState int

const (
	statePending responseState = iota
	stateSent
	stateErrored
)

// ErrorHandler observes errors routed through Response.Error.
type ErrorHandler func(ctx context.Context, err error, req *Request, res *Response) error

// Response is the per-run terminal action. The first Send or Error reaches the
// responder; later terminal calls never do.
type Response struct {
	req       *Request
	responder domain.Responder
	handlers  []ErrorHandler
	logger    *slog.Logger

	mu    sync.Mutex
	state responseState
}

func newResponse(req *Request, responder domain.Responder, handlers []ErrorHandler, logger *slog.Logger) *Response {
	return &Response{
		req:       req,
		responder: responder,
		handlers:  handlers,
		logger:    logger,
	}
}

// Send delivers content through the channel responder.
func (r *Response) Send(ctx context.Context, content string) error {
	if !r.claim(stateSent) {
		metrics.DoubleResponses.Inc()
		r.logger.Warn("send after response completed", "request_id", r.req.ID, "room", r.req.Input.RoomID)
		return ErrAlreadyResponded
	}
	metrics.RepliesSent.Inc()

	if err := r.callResponder(func() error { return r.responder.Send(ctx, content) }); err != nil {
		metrics.DeliveryFailures.Inc()
		r.logger.Error("reply delivery failed",
			"request_id", r.req.ID,
			"source", r.req.Input.Source,
			"room", r.req.Input.RoomID,
			"err", err,
		)
		return fmt.Errorf("deliver reply: %w", err)
	}
	return nil
}

// Error reports err to the responder (once per request) and then to every
// registered error handler in order. A failing handler does not stop the rest.
func (r *Response) Error(ctx context.Context, err error) {
	metrics.RunErrors(StageOf(err)).Inc()
	r.logger.Debug("pipeline error", "request_id", r.req.ID, "stage", StageOf(err), "err", err)

	if r.claim(stateErrored) {
		if rerr := r.callResponder(func() error { return r.responder.Error(ctx, err) }); rerr != nil {
			metrics.DeliveryFailures.Inc()
			r.logger.Error("error delivery failed", "request_id", r.req.ID, "err", rerr)
		}
	} else {
		metrics.DoubleResponses.Inc()
		r.logger.Warn("error after response completed", "request_id", r.req.ID, "err", err)
	}

	for i, h := range r.handlers {
		if herr := safeHandle(ctx, h, err, r.req, r); herr != nil {
			metrics.HandlerFailures.Inc()
			r.logger.Error("error in error handler", "index", i, "request_id", r.req.ID, "err", herr)
		}
	}
}

// Responded reports whether a terminal call has been made.
func (r *Response) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != statePending
}

// Request returns the request this response is bound to.
func (r *Response) Request() *Request { return r.req }

func (r *Response) claim(next responseState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != statePending {
		return false
	}
	r.state = next
	return true
}

func (r *Response) callResponder(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("responder panic: %v", p)
		}
	}()
	return fn()
}

func safeHandle(ctx context.Context, h ErrorHandler, err error, req *Request, res *Response) (herr error) {
	defer func() {
		if p := recover(); p != nil {
			herr = fmt.Errorf("error handler panic: %v", p)
		}
	}()
	return h(ctx, err, req, res)
}
