package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"personabot/internal/domain"
	"personabot/internal/pipeline"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noopRoute(name string) pipeline.Route {
	return pipeline.Route{
		Name:        name,
		Description: name + " route",
		Handler: func(ctx context.Context, c *pipeline.Context, req *pipeline.Request, res *pipeline.Response) error {
			return res.Send(ctx, name)
		},
	}
}

type fakeLLM struct {
	answer string
	err    error
	calls  int
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GetText(ctx context.Context, prompt, model string) (string, error) {
	f.calls++
	return f.answer, f.err
}

func (f *fakeLLM) GetStructured(ctx context.Context, prompt string, schema domain.Schema, size domain.LLMSize, out any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.answer), out)
}

type recordingResponder struct {
	mu   sync.Mutex
	sent []string
	errs []error
	done chan struct{}
}

func newRecordingResponder() *recordingResponder {
	return &recordingResponder{done: make(chan struct{}, 16)}
}

func (r *recordingResponder) Send(ctx context.Context, content string) error {
	r.mu.Lock()
	r.sent = append(r.sent, content)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingResponder) Error(ctx context.Context, err error) error {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingResponder) snapshot() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...), append([]error(nil), r.errs...)
}

type chanBus struct {
	ch chan domain.Envelope
}

func newChanBus() *chanBus { return &chanBus{ch: make(chan domain.Envelope, 16)} }

func (b *chanBus) Publish(env domain.Envelope)       { b.ch <- env }
func (b *chanBus) Subscribe() <-chan domain.Envelope { return b.ch }
func (b *chanBus) Close()                            { close(b.ch) }
