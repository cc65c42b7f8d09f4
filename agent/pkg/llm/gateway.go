package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// ProviderConfig registers one provider with the gateway.
type ProviderConfig struct {
	Client Client
	// Model is used when a call does not name one.
	Model string
	// RequestsPerSecond throttles calls client-side. Zero disables it.
	RequestsPerSecond float64
	Burst             int
}

// GatewayConfig configures a Gateway. The first provider is the default.
type GatewayConfig struct {
	Logger    *slog.Logger
	Providers []ProviderConfig
	Timeout   time.Duration
}

func (c *GatewayConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.Client == nil {
			return fmt.Errorf("provider %d: client is required", i)
		}
		if p.Model == "" {
			return fmt.Errorf("provider %s: model is required", p.Client.Name())
		}
		if seen[p.Client.Name()] {
			return fmt.Errorf("provider %s registered twice", p.Client.Name())
		}
		seen[p.Client.Name()] = true
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}

type provider struct {
	ProviderConfig
	limiter *rate.Limiter
}

// Gateway routes generation calls to a configured provider. It holds no
// per-request state and is safe for concurrent use.
type Gateway struct {
	log       *slog.Logger
	timeout   time.Duration
	order     []string
	providers map[string]*provider
}

func NewGateway(cfg *GatewayConfig) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gateway{
		log:       cfg.Logger,
		timeout:   cfg.Timeout,
		providers: make(map[string]*provider, len(cfg.Providers)),
	}
	for _, pc := range cfg.Providers {
		p := &provider{ProviderConfig: pc}
		if pc.RequestsPerSecond > 0 {
			burst := pc.Burst
			if burst == 0 {
				burst = 1
			}
			p.limiter = rate.NewLimiter(rate.Limit(pc.RequestsPerSecond), burst)
		}
		name := pc.Client.Name()
		g.order = append(g.order, name)
		g.providers[name] = p
	}
	return g, nil
}

// Default returns the default provider name.
func (g *Gateway) Default() string {
	return g.order[0]
}

// Providers returns the configured provider names, default first.
func (g *Gateway) Providers() []string {
	return append([]string(nil), g.order...)
}

// Generate sends prompt to the named provider. An empty provider selects the
// default and an empty model selects the provider's configured model. Calls
// exceeding the gateway timeout fail with ErrProviderUnavailable.
func (g *Gateway) Generate(ctx context.Context, prompt Prompt, providerName, model string) (string, error) {
	if providerName == "" {
		providerName = g.Default()
	}
	p, ok := g.providers[providerName]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", providerName)
	}
	if model == "" {
		model = p.Model
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			err = newError(providerName, ErrRateLimited, err)
			RequestsTotal.WithLabelValues(providerName, outcome(err)).Inc()
			return "", err
		}
	}

	start := time.Now()
	text, err := p.Client.Generate(ctx, prompt, model)
	RequestDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
	if err != nil {
		err = normalize(ctx, providerName, err)
	}
	RequestsTotal.WithLabelValues(providerName, outcome(err)).Inc()
	if err != nil {
		g.log.Warn("llm: generation failed", "provider", providerName, "model", model, "error", err)
		return "", err
	}
	return text, nil
}

// normalize guarantees a *Error with one of the known kinds.
func normalize(ctx context.Context, providerName string, err error) error {
	var lerr *Error
	if errors.As(err, &lerr) {
		return err
	}
	if cerr := classifyContext(providerName, ctx, err); cerr != nil {
		return cerr
	}
	return newError(providerName, ErrProviderUnavailable, err)
}
