package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/BatmanBruc/hub-sales-bot/internal/metrics"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

const DefaultCallTimeout = 30 * time.Second

var tracer = otel.Tracer("hub-sales-bot/internal/llm")

// Attempt is one step of the chain. Alternative models of the same
// provider set OnlyAfterModelUnavailable so they run only while the
// previous step reported the model as unavailable.
type Attempt struct {
	Provider                  string
	Model                     string
	Client                    Client
	OnlyAfterModelUnavailable bool
}

// Chain tries its attempts in order and returns the first success.
type Chain struct {
	attempts    []Attempt
	callTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *logging.Logger
}

type ChainOption func(*Chain)

func WithCallTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

func WithLogger(l *logging.Logger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewChain(attempts []Attempt, opts ...ChainOption) *Chain {
	c := &Chain{
		callTimeout: DefaultCallTimeout,
		logger:      logging.Default(),
	}
	for _, a := range attempts {
		if a.Client != nil {
			c.attempts = append(c.attempts, a)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Len() int { return len(c.attempts) }

// Complete runs each attempt at most once, so a call makes at most Len()
// provider requests.
func (c *Chain) Complete(ctx context.Context, req Request) (string, error) {
	if len(c.attempts) == 0 {
		return "", fmt.Errorf("llm: %w: no providers configured", types.ErrCollaboratorUnavailable)
	}

	var lastErr error
	for i, a := range c.attempts {
		if a.OnlyAfterModelUnavailable && !errors.Is(lastErr, types.ErrModelUnavailable) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("llm: %w: %w", types.ErrCollaboratorUnavailable, err)
		}

		text, err := c.try(ctx, a, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("llm fallback succeeded", "provider", a.Provider, "model", a.Model, "attempt", i+1)
			}
			return text, nil
		}
		lastErr = err
		c.logger.Warn("llm attempt failed", "provider", a.Provider, "model", a.Model, "attempt", i+1, "error", err)
	}
	return "", fmt.Errorf("llm: %w: all providers failed: %w", types.ErrCollaboratorUnavailable, lastErr)
}

func (c *Chain) try(ctx context.Context, a Attempt, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", a.Provider),
		attribute.String("llm.model", a.Model),
	)

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if a.Model != "" {
		req.Model = a.Model
	}
	start := time.Now()
	text, err := a.Client.Complete(callCtx, req)
	elapsed := time.Since(start).Seconds()

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, types.ErrModelUnavailable):
		outcome = "model_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	c.metrics.ObserveLLMAttempt(a.Provider, a.Model, outcome, elapsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return text, err
}
