// Package ai is the generation gateway. It owns the call timeout, the retry
// policy and the translation of backend failures into the pipeline errors.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/middleware"
	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus"
)

// Generator produces raw reply text for a request
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (string, error)
}

// Gateway enforces the deadline and retry policy around a Provider
type Gateway struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	metrics    *middleware.Metrics
	logger     *logrus.Logger
}

// NewGateway wraps provider. maxRetries above 1 is clamped to 1.
func NewGateway(provider Provider, timeout time.Duration, maxRetries int, metrics *middleware.Metrics, logger *logrus.Logger) *Gateway {
	if maxRetries > 1 {
		maxRetries = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Gateway{
		provider:   provider,
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		metrics:    metrics,
		logger:     logger,
	}
}

// NewProvider builds the provider named by cfg.Provider
func NewProvider(ctx context.Context, cfg config.GenerationConfig, logger *logrus.Logger) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(ctx, cfg, logger)
	case "openai", "":
		return NewOpenAIProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Provider)
	}
}

type result struct {
	text string
	err  error
}

// Generate returns the provider's text, or ErrGenerationTimeout / ErrGenerationProvider.
// The deadline holds even if the provider ignores cancellation.
func (g *Gateway) Generate(ctx context.Context, req models.GenerationRequest) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		text, err := g.attempt(ctx, req)
		if err == nil {
			g.observe("success", start)
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if !IsTransient(err) || attempt == g.maxRetries {
			break
		}

		g.logger.WithFields(logrus.Fields{
			"provider": g.provider.Name(),
			"attempt":  attempt + 1,
			"error":    err.Error(),
		}).Warn("Generation failed, retrying")

		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= g.backoff {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(g.backoff):
		}
	}

	if ctx.Err() != nil {
		g.observe("timeout", start)
		g.logger.WithFields(logrus.Fields{
			"provider": g.provider.Name(),
			"timeout":  g.timeout,
		}).Warn("Generation timed out")
		return "", models.ErrGenerationTimeout
	}

	g.observe("error", start)
	g.logger.WithError(lastErr).WithField("provider", g.provider.Name()).Error("Generation failed")
	return "", fmt.Errorf("%w: %s", models.ErrGenerationProvider, lastErr.Error())
}

func (g *Gateway) attempt(ctx context.Context, req models.GenerationRequest) (string, error) {
	done := make(chan result, 1)
	go func() {
		text, err := g.provider.Complete(ctx, req)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		if strings.TrimSpace(r.text) == "" {
			return "", errEmptyReply
		}
		return r.text, nil
	}
}

func (g *Gateway) observe(status string, start time.Time) {
	if g.metrics != nil {
		g.metrics.RecordGeneration(g.provider.Name(), status, time.Since(start))
	}
}
