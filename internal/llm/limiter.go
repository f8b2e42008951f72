package llm

import (
	"context"
	"time"

	"personabot/internal/domain"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an LLM to a per-minute budget. Callers block
// until a token is available or ctx ends.
type RateLimited struct {
	next    domain.LLM
	limiter *rate.Limiter
}

// NewRateLimited wraps next. perMinute <= 0 disables limiting.
func NewRateLimited(next domain.LLM, perMinute int) domain.LLM {
	if perMinute <= 0 {
		return next
	}
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

func (r *RateLimited) Name() string { return r.next.Name() }

func (r *RateLimited) GetText(ctx context.Context, prompt, model string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", generationError(r.Name(), err)
	}
	return r.next.GetText(ctx, prompt, model)
}

func (r *RateLimited) GetStructured(ctx context.Context, prompt string, schema domain.Schema, size domain.LLMSize, out any) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return generationError(r.Name(), err)
	}
	return r.next.GetStructured(ctx, prompt, schema, size, out)
}
