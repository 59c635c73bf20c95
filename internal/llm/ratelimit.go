package llm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures rate limiting for LLM providers.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited)
	RequestsPerMinute int
	// TokensPerMinute limits total tokens per minute (0 = unlimited)
	TokensPerMinute int
	// BurstSize allows temporary burst above the rate limit
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults for free-tier cloud APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,
		TokensPerMinute:   25000,
		BurstSize:         3,
	}
}

// RateLimitProvider wraps a provider with request and token rate limiting.
// Request pacing uses a token bucket; the per-minute token budget resets on a
// fixed window since LLM APIs meter usage that way.
type RateLimitProvider struct {
	inner   Provider
	config  *RateLimitConfig
	limiter *rate.Limiter

	mu             sync.Mutex
	tokenBudget    int
	tokensInWindow int
	windowStart    time.Time
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}

	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(config.RequestsPerMinute) / 60.0)
	}

	return &RateLimitProvider{
		inner:       inner,
		config:      config,
		limiter:     rate.NewLimiter(limit, burst),
		tokenBudget: config.TokensPerMinute,
		windowStart: time.Now(),
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string { return r.inner.Name() }

// Complete rate-limits and delegates to the inner provider.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.trackTokenUsage(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed rate-limits and delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	// Block until the token budget window resets if it is exhausted.
	for {
		r.mu.Lock()
		r.maybeResetWindow()
		if r.config.TokensPerMinute == 0 || r.tokenBudget > 0 {
			r.mu.Unlock()
			return nil
		}
		remaining := time.Minute - time.Since(r.windowStart)
		r.mu.Unlock()

		if remaining <= 0 {
			remaining = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remaining):
		}
	}
}

func (r *RateLimitProvider) maybeResetWindow() {
	if time.Since(r.windowStart) >= time.Minute {
		r.windowStart = time.Now()
		r.tokensInWindow = 0
		r.tokenBudget = r.config.TokensPerMinute
	}
}

func (r *RateLimitProvider) trackTokenUsage(tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokensInWindow += tokens
	r.tokenBudget -= tokens
	if r.tokenBudget < 0 {
		r.tokenBudget = 0
	}
}

// Stats returns current rate limiting statistics.
func (r *RateLimitProvider) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RateLimitStats{
		TokensInWindow:  r.tokensInWindow,
		RemainingTokens: r.tokenBudget,
		WindowStart:     r.windowStart,
	}
}

// RateLimitStats contains rate limiting statistics.
type RateLimitStats struct {
	TokensInWindow  int
	RemainingTokens int
	WindowStart     time.Time
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
