package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/malbeclabs/sportsql/agent/pkg/llm"
)

const (
	defaultCompleteTries   = 3
	defaultInitialInterval = 500 * time.Millisecond
)

// Generator is the provider gateway.
type Generator interface {
	Generate(ctx context.Context, prompt llm.Prompt, provider, model string) (string, error)
}

// Completer turns a prompt into completion text.
type Completer interface {
	Complete(ctx context.Context, prompt llm.Prompt) (string, error)
}

// Route is one provider and model to try.
type Route struct {
	Provider string
	Model    string
}

type FailoverConfig struct {
	Logger    *slog.Logger
	Generator Generator

	// Routes are tried in order. Retryable errors are retried on the same
	// route first, then the next route is tried.
	Routes []Route

	MaxTries        uint
	InitialInterval time.Duration
}

func (c *FailoverConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Generator == nil {
		return errors.New("generator is required")
	}
	if len(c.Routes) == 0 {
		return errors.New("at least one route is required")
	}
	for _, r := range c.Routes {
		if r.Provider == "" {
			return errors.New("route provider is required")
		}
	}
	if c.MaxTries == 0 {
		c.MaxTries = defaultCompleteTries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaultInitialInterval
	}
	return nil
}

// FailoverCompleter retries transient provider failures with exponential
// backoff and fails over to the next route when one is exhausted.
type FailoverCompleter struct {
	log *slog.Logger
	cfg *FailoverConfig
}

func NewFailoverCompleter(cfg *FailoverConfig) (*FailoverCompleter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FailoverCompleter{log: cfg.Logger, cfg: cfg}, nil
}

func (c *FailoverCompleter) Complete(ctx context.Context, prompt llm.Prompt) (string, error) {
	var lastErr error
	for i, route := range c.cfg.Routes {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.cfg.InitialInterval

		text, err := backoff.Retry(ctx, func() (string, error) {
			text, err := c.cfg.Generator.Generate(ctx, prompt, route.Provider, route.Model)
			if err != nil && !llm.Retryable(err) {
				return "", backoff.Permanent(err)
			}
			return text, err
		}, backoff.WithBackOff(b), backoff.WithMaxTries(c.cfg.MaxTries))
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err
		if !llm.Retryable(err) {
			return "", err
		}
		if i+1 < len(c.cfg.Routes) {
			c.log.Warn("pipeline: provider exhausted, failing over",
				"provider", route.Provider, "next", c.cfg.Routes[i+1].Provider, "error", err)
		}
	}
	return "", lastErr
}
