package llm

import (
	"context"

	"github.com/ppiankov/siteintent/internal/worker"
)

// Throttled rate limits a provider's completions. Batch builds share one
// limiter so concurrent sites do not exceed the upstream quota.
type Throttled struct {
	Provider
	limiter *worker.Limiter
}

// NewThrottled wraps p; a nil limiter returns p unchanged
func NewThrottled(p Provider, limiter *worker.Limiter) Provider {
	if p == nil || limiter == nil {
		return p
	}
	return &Throttled{Provider: p, limiter: limiter}
}

// Complete waits for the provider's key before delegating
func (t *Throttled) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := t.limiter.Wait(ctx, t.Name()); err != nil {
		return nil, err
	}
	return t.Provider.Complete(ctx, req)
}
