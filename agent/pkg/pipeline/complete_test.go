package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/sportsql/agent/pkg/llm"
)

type mockGenerator struct {
	mu        sync.Mutex
	errs      map[string][]error
	responses map[string]string
	calls     []string
}

func (m *mockGenerator) Generate(_ context.Context, _ llm.Prompt, provider, model string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, provider+"/"+model)
	if errs := m.errs[provider]; len(errs) > 0 {
		err := errs[0]
		m.errs[provider] = errs[1:]
		if err != nil {
			return "", err
		}
	}
	return m.responses[provider], nil
}

func unavailable(provider string) error {
	return &llm.Error{Provider: provider, Kind: llm.ErrProviderUnavailable, Err: errors.New("503")}
}

func TestFailoverCompleter(t *testing.T) {
	t.Parallel()

	routes := []Route{
		{Provider: llm.ProviderAnthropic, Model: "claude"},
		{Provider: llm.ProviderOllama, Model: "llama"},
	}

	tests := []struct {
		name      string
		errs      map[string][]error
		want      string
		wantKind  error
		wantCalls []string
	}{
		{
			name:      "primary succeeds",
			want:      "from anthropic",
			wantCalls: []string{"anthropic/claude"},
		},
		{
			name:      "transient error retried on same provider",
			errs:      map[string][]error{llm.ProviderAnthropic: {unavailable(llm.ProviderAnthropic)}},
			want:      "from anthropic",
			wantCalls: []string{"anthropic/claude", "anthropic/claude"},
		},
		{
			name: "exhausted primary fails over",
			errs: map[string][]error{llm.ProviderAnthropic: {
				&llm.Error{Provider: llm.ProviderAnthropic, Kind: llm.ErrRateLimited},
				&llm.Error{Provider: llm.ProviderAnthropic, Kind: llm.ErrRateLimited},
			}},
			want:      "from ollama",
			wantCalls: []string{"anthropic/claude", "anthropic/claude", "ollama/llama"},
		},
		{
			name:      "invalid response is not retried",
			errs:      map[string][]error{llm.ProviderAnthropic: {&llm.Error{Provider: llm.ProviderAnthropic, Kind: llm.ErrInvalidResponse}}},
			wantKind:  llm.ErrInvalidResponse,
			wantCalls: []string{"anthropic/claude"},
		},
		{
			name: "all providers down",
			errs: map[string][]error{
				llm.ProviderAnthropic: {unavailable(llm.ProviderAnthropic), unavailable(llm.ProviderAnthropic)},
				llm.ProviderOllama:    {unavailable(llm.ProviderOllama), unavailable(llm.ProviderOllama)},
			},
			wantKind:  llm.ErrProviderUnavailable,
			wantCalls: []string{"anthropic/claude", "anthropic/claude", "ollama/llama", "ollama/llama"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			errs := map[string][]error{}
			for k, v := range tt.errs {
				errs[k] = append([]error(nil), v...)
			}
			gen := &mockGenerator{
				errs: errs,
				responses: map[string]string{
					llm.ProviderAnthropic: "from anthropic",
					llm.ProviderOllama:    "from ollama",
				},
			}
			c, err := NewFailoverCompleter(&FailoverConfig{
				Logger:          testLogger(),
				Generator:       gen,
				Routes:          routes,
				MaxTries:        2,
				InitialInterval: time.Millisecond,
			})
			require.NoError(t, err)

			got, err := c.Complete(context.Background(), llm.Prompt{System: "s", User: "u"})
			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.wantCalls, gen.calls)
		})
	}
}

func TestFailoverConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     FailoverConfig
		wantErr string
	}{
		{name: "no logger", cfg: FailoverConfig{Generator: &mockGenerator{}, Routes: []Route{{Provider: "p"}}}, wantErr: "logger is required"},
		{name: "no generator", cfg: FailoverConfig{Logger: testLogger(), Routes: []Route{{Provider: "p"}}}, wantErr: "generator is required"},
		{name: "no routes", cfg: FailoverConfig{Logger: testLogger(), Generator: &mockGenerator{}}, wantErr: "at least one route is required"},
		{name: "empty provider", cfg: FailoverConfig{Logger: testLogger(), Generator: &mockGenerator{}, Routes: []Route{{}}}, wantErr: "route provider is required"},
		{name: "defaults", cfg: FailoverConfig{Logger: testLogger(), Generator: &mockGenerator{}, Routes: []Route{{Provider: "p"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint(defaultCompleteTries), cfg.MaxTries)
			assert.Equal(t, defaultInitialInterval, cfg.InitialInterval)
		})
	}
}
