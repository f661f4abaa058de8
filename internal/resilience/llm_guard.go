package resilience

import (
	"context"

	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
)

// GuardedLLM is an [llm.Provider] that sends each completion through a
// [CircuitBreaker]. While the breaker is open, questions fail fast with
// [ErrCircuitOpen] and the model is not contacted.
type GuardedLLM struct {
	provider llm.Provider
	breaker  *CircuitBreaker
}

var _ llm.Provider = (*GuardedLLM)(nil)

// NewGuardedLLM puts a breaker configured by cfg in front of provider.
func NewGuardedLLM(provider llm.Provider, cfg CircuitBreakerConfig) *GuardedLLM {
	return &GuardedLLM{provider: provider, breaker: NewCircuitBreaker(cfg)}
}

// Breaker is exposed for readiness checks.
func (g *GuardedLLM) Breaker() *CircuitBreaker { return g.breaker }

// Complete implements [llm.Provider].
func (g *GuardedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (resp *llm.CompletionResponse, err error) {
	err = g.breaker.Execute(func() error {
		resp, err = g.provider.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Capabilities implements [llm.Provider]. It does not touch the breaker.
func (g *GuardedLLM) Capabilities() llm.ModelCapabilities {
	return g.provider.Capabilities()
}
