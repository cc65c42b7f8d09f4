package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
	"github.com/malbeclabs/sportsql/agent/pkg/llm"
	"github.com/malbeclabs/sportsql/agent/pkg/prompts"
	"github.com/malbeclabs/sportsql/agent/pkg/sqlguard"
	"github.com/malbeclabs/sportsql/agent/pkg/viz"
	"github.com/malbeclabs/sportsql/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockResolver struct {
	resolutions map[string]entity.Resolution
	err         error
}

func (m *mockResolver) Resolve(_ context.Context, question string) (entity.Resolution, error) {
	if m.err != nil {
		return entity.Resolution{}, m.err
	}
	if r, ok := m.resolutions[question]; ok {
		return r, nil
	}
	return entity.NoMatch, nil
}

type mockCompleter struct {
	mu      sync.Mutex
	respond func(prompt llm.Prompt) (string, error)
	prompts []llm.Prompt
}

func (m *mockCompleter) Complete(_ context.Context, prompt llm.Prompt) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.respond(prompt)
}

func (m *mockCompleter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *mockCompleter) userPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.prompts {
		out = append(out, p.User)
	}
	return out
}

type mockExecutor struct {
	mu      sync.Mutex
	results map[string]store.ResultSet
	errs    map[string][]error
	delays  map[string]time.Duration
	queries []string
}

func (m *mockExecutor) Query(ctx context.Context, sql string) (store.ResultSet, error) {
	m.mu.Lock()
	m.queries = append(m.queries, sql)
	var err error
	if errs := m.errs[sql]; len(errs) > 0 {
		err = errs[0]
		if len(errs) > 1 {
			m.errs[sql] = errs[1:]
		}
	}
	delay := m.delays[sql]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return store.ResultSet{}, ctx.Err()
		}
	}
	if err != nil {
		return store.ResultSet{}, err
	}
	if rs, ok := m.results[sql]; ok {
		return rs, nil
	}
	return store.ResultSet{Headers: []string{"no_match"}, Rows: [][]any{}}, nil
}

type mockRefresher struct {
	mu  sync.Mutex
	ids []int
}

func (m *mockRefresher) RefreshPlayer(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

type mockVisualizer struct {
	spec viz.Spec
	err  error
}

func (m *mockVisualizer) Select(context.Context, string, store.ResultSet) (viz.Spec, error) {
	return m.spec, m.err
}

type mockPlots struct {
	saved []viz.Spec
}

func (m *mockPlots) Save(spec viz.Spec, _ store.ResultSet) (string, error) {
	m.saved = append(m.saved, spec)
	return "/plots/chart.vl.json", nil
}

func newTestBuilder(t *testing.T) *prompts.Builder {
	t.Helper()
	p, err := prompts.LoadPrompts()
	require.NoError(t, err)
	aliases, err := entity.DefaultAliases()
	require.NoError(t, err)
	b, err := prompts.NewBuilder(prompts.BuilderConfig{
		Prompts:         p,
		Aliases:         aliases,
		ChartKinds:      viz.Kinds(),
		MaxSubQuestions: 10,
	})
	require.NoError(t, err)
	return b
}

type fixture struct {
	pipeline  *Pipeline
	completer *mockCompleter
	executor  *mockExecutor
	refresher *mockRefresher
}

func newFixture(t *testing.T, resolver Resolver, respond func(llm.Prompt) (string, error), exec *mockExecutor, mutate func(*Config)) *fixture {
	t.Helper()
	if exec == nil {
		exec = &mockExecutor{}
	}
	f := &fixture{
		completer: &mockCompleter{respond: respond},
		executor:  exec,
		refresher: &mockRefresher{},
	}
	cfg := &Config{
		Logger:         testLogger(),
		Resolver:       resolver,
		Prompts:        newTestBuilder(t),
		Completer:      f.completer,
		Synthesizer:    sqlguard.NewSynthesizer(testLogger(), sqlguard.DefaultMaxCorrections),
		Executor:       exec,
		Refresher:      f.refresher,
		RequestTimeout: 10 * time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	f.pipeline = p
	return f
}

func player(span string, id int, first, second, team string, points int) entity.Mention {
	return entity.Mention{
		Span: span,
		Kind: entity.KindPlayer,
		Candidates: []entity.Candidate{{
			Kind:        entity.KindPlayer,
			Canonical:   first + " " + second,
			PlayerID:    id,
			FirstName:   first,
			SecondName:  second,
			WebName:     second,
			TeamName:    team,
			TotalPoints: points,
		}},
	}
}

func matched(mentions ...entity.Mention) entity.Resolution {
	return entity.Resolution{Status: entity.StatusMatched, Mentions: mentions}
}

func fenced(sql string) string {
	return "```sql\n" + sql + "\n```"
}

// questionOf returns the question a SQL generation prompt was built for.
func questionOf(p llm.Prompt) string {
	_, q, ok := strings.Cut(p.User, "## Question\n")
	if !ok {
		return ""
	}
	q, _, _ = strings.Cut(q, "\n")
	return q
}

func isDecompose(p llm.Prompt) bool  { return strings.HasPrefix(p.System, "You plan research") }
func isSynthesize(p llm.Prompt) bool { return strings.HasPrefix(p.System, "You answer questions") }

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t)
	valid := func() *Config {
		return &Config{
			Logger:      testLogger(),
			Resolver:    &mockResolver{},
			Prompts:     b,
			Completer:   &mockCompleter{},
			Synthesizer: sqlguard.NewSynthesizer(testLogger(), -1),
			Executor:    &mockExecutor{},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "no logger", mutate: func(c *Config) { c.Logger = nil }, wantErr: "logger is required"},
		{name: "no resolver", mutate: func(c *Config) { c.Resolver = nil }, wantErr: "resolver is required"},
		{name: "no prompts", mutate: func(c *Config) { c.Prompts = nil }, wantErr: "prompt builder is required"},
		{name: "no completer", mutate: func(c *Config) { c.Completer = nil }, wantErr: "completer is required"},
		{name: "no synthesizer", mutate: func(c *Config) { c.Synthesizer = nil }, wantErr: "synthesizer is required"},
		{name: "no executor", mutate: func(c *Config) { c.Executor = nil }, wantErr: "executor is required"},
		{name: "visualizer without plots", mutate: func(c *Config) { c.Visualizer = &mockVisualizer{} }, wantErr: "visualizer and plot store must be set together"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, defaultDeepWorkers, cfg.DeepWorkers)
			assert.Equal(t, defaultRequestTimeout, cfg.RequestTimeout)
		})
	}
}

func TestRequest_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		req      Request
		wantMode Mode
		wantErr  string
	}{
		{name: "defaults to direct", req: Request{Question: "  How many assists does Saka have? "}, wantMode: ModeDirect},
		{name: "deep", req: Request{Question: "Compare Haaland and Salah", Mode: ModeDeep}, wantMode: ModeDeep},
		{name: "empty", req: Request{Question: "   "}, wantErr: "question is required"},
		{name: "too long", req: Request{Question: strings.Repeat("a", MaxQuestionLength+1)}, wantErr: "question is too long"},
		{name: "bad mode", req: Request{Question: "q", Mode: "fast"}, wantErr: "mode must be direct or deep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := tt.req
			err := req.Normalize()
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, req.Mode)
			assert.Equal(t, strings.TrimSpace(tt.req.Question), req.Question)
		})
	}
}
