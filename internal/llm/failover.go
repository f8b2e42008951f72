package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"personabot/internal/domain"
)

// Failover tries each LLM in order, falling back to the next when one fails.
type Failover struct {
	chain  []domain.LLM
	logger *slog.Logger
}

// NewFailover creates a failover chain. At least one LLM is required.
func NewFailover(chain []domain.LLM, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{chain: chain, logger: logger}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.chain))
	for i, l := range f.chain {
		names[i] = l.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

func (f *Failover) GetText(ctx context.Context, prompt, model string) (string, error) {
	var out string
	err := f.try(ctx, func(l domain.LLM) error {
		var err error
		out, err = l.GetText(ctx, prompt, model)
		return err
	})
	return out, err
}

func (f *Failover) GetStructured(ctx context.Context, prompt string, schema domain.Schema, size domain.LLMSize, out any) error {
	return f.try(ctx, func(l domain.LLM) error {
		return l.GetStructured(ctx, prompt, schema, size, out)
	})
}

func (f *Failover) try(ctx context.Context, call func(domain.LLM) error) error {
	var lastErr error
	for i, l := range f.chain {
		if err := ctx.Err(); err != nil {
			return generationError(f.Name(), err)
		}
		err := call(l)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback llm", "llm", l.Name(), "attempt", i+1)
			}
			return nil
		}
		lastErr = err
		f.logger.Warn("failover: llm failed, trying next", "llm", l.Name(), "attempt", i+1, "err", err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty failover chain")
	}
	return generationError(f.Name(), fmt.Errorf("all llms in failover chain failed: %w", lastErr))
}
