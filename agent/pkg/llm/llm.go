// Package llm is a thin gateway over text-generation providers. It returns the
// raw completion or a classified error and never retries on its own; retry
// and failover policy belongs to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Prompt is a provider-neutral prompt.
type Prompt struct {
	System string
	User   string
}

// Client is implemented by each provider transport.
type Client interface {
	// Name is the provider identifier used in configuration.
	Name() string
	// Generate returns the full completion text for the prompt.
	Generate(ctx context.Context, prompt Prompt, model string) (string, error)
}

var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrRateLimited         = errors.New("rate limited")
	ErrInvalidResponse     = errors.New("invalid response")
)

// Error is returned for every failed generation. Kind is one of the
// sentinel errors above and matches with errors.Is.
type Error struct {
	Provider string
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("llm %s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("llm %s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(provider string, kind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// Retryable reports whether err may succeed on retry or on another provider.
func Retryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrRateLimited)
}

// classifyStatus maps an HTTP status from a provider to an error kind.
func classifyStatus(status int) error {
	switch {
	case status == 429:
		return ErrRateLimited
	case status == 408 || status == 401 || status == 403 || status >= 500:
		return ErrProviderUnavailable
	default:
		return ErrInvalidResponse
	}
}

// classifyContext maps context failures to ErrProviderUnavailable. Timeouts
// are treated as the provider being unavailable.
func classifyContext(provider string, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return newError(provider, ErrProviderUnavailable, err)
	}
	return nil
}
