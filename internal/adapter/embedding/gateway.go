package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nexus/config"
	"nexus/internal/domain"
	"nexus/internal/pkg/retry"
	"nexus/internal/port"
)

const defaultBatchSize = 64

// Gateway fronts an EmbeddingProvider: it splits input into provider-sized
// batches, throttles outbound calls and retries each failed batch under a
// shared policy. It never caches.
type Gateway struct {
	provider  port.EmbeddingProvider
	policy    *retry.Policy
	limiter   *rate.Limiter
	batchSize int
	logger    *zap.Logger
	calls     atomic.Int64
}

type GatewayOption func(*Gateway)

// WithRateLimit throttles provider calls to rps requests per second.
func WithRateLimit(rps float64, burst int) GatewayOption {
	return func(g *Gateway) {
		if rps <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(logger *zap.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logger }
}

func NewGateway(provider port.EmbeddingProvider, policy *retry.Policy, batchSize int, opts ...GatewayOption) *Gateway {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if policy == nil {
		policy = retry.NewPolicy(retry.DefaultConfig())
	}
	g := &Gateway{
		provider:  provider,
		policy:    policy,
		batchSize: batchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ port.Embedder = (*Gateway)(nil)

// Embed returns one vector per text, in order. If any batch still fails after
// the retry policy gives up, the whole call fails with *domain.EmbeddingProviderError.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += g.batchSize {
		end := offset + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, attempts, err := g.embedBatch(ctx, texts[offset:end])
		if err != nil {
			return nil, &domain.EmbeddingProviderError{
				Model:    g.provider.ModelName(),
				Offset:   offset,
				Size:     end - offset,
				Attempts: attempts,
				Err:      err,
			}
		}
		out = append(out, vectors...)
	}

	return out, nil
}

func (g *Gateway) embedBatch(ctx context.Context, batch []string) ([][]float32, uint, error) {
	var (
		vectors  [][]float32
		attempts uint
	)

	err := g.policy.Do(ctx, func() error {
		attempts++
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
		}

		g.calls.Add(1)
		v, err := g.provider.EmbedBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil || isPermanent(err) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		if err := g.check(v, len(batch)); err != nil {
			return err
		}
		vectors = v
		return nil
	}, func(n uint, err error) {
		g.logger.Warn("embedding batch failed, retrying",
			zap.String("model", g.provider.ModelName()),
			zap.Int("batch_size", len(batch)),
			zap.Uint("attempt", n+1),
			zap.Uint("max_attempts", g.policy.Attempts()),
			zap.Error(err),
		)
	})

	return vectors, attempts, err
}

func (g *Gateway) check(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), want)
	}
	dim := g.provider.Dimension()
	for i, v := range vectors {
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return nil
}

func isPermanent(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Permanent()
}

func (g *Gateway) Dimension() int {
	return g.provider.Dimension()
}

func (g *Gateway) ModelName() string {
	return g.provider.ModelName()
}

// Calls returns the number of provider requests made so far.
func (g *Gateway) Calls() int64 {
	return g.calls.Load()
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg config.EmbeddingConfig) (port.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.Dimension, cfg.Timeout)
	case "deepseek":
		return NewDeepSeekEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.Dimension, cfg.Timeout)
	case "jina":
		return NewJinaEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.Dimension, cfg.Timeout)
	case "lmstudio":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:1234/v1"
		}
		return NewLocalEmbedder(cfg.Model, baseURL, cfg.Dimension, cfg.Timeout), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		return NewLocalEmbedder(cfg.Model, baseURL, cfg.Dimension, cfg.Timeout), nil
	case "hash":
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// NewGatewayFromConfig wires provider, retry policy and rate limit from cfg.
func NewGatewayFromConfig(cfg config.EmbeddingConfig, logger *zap.Logger) (*Gateway, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewGateway(provider, retry.NewPolicy(cfg.Retry), cfg.BatchSize,
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		WithLogger(logger),
	), nil
}
