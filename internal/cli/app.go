package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
	"github.com/malbeclabs/sportsql/agent/pkg/llm"
	"github.com/malbeclabs/sportsql/agent/pkg/pipeline"
	"github.com/malbeclabs/sportsql/agent/pkg/prompts"
	"github.com/malbeclabs/sportsql/agent/pkg/sqlguard"
	"github.com/malbeclabs/sportsql/agent/pkg/viz"
	"github.com/malbeclabs/sportsql/pkg/fpl"
	"github.com/malbeclabs/sportsql/pkg/refresh"
	"github.com/malbeclabs/sportsql/pkg/store"
)

const plotsPrefix = "/plots"

// app is the wired component graph shared by the commands.
type app struct {
	log       *slog.Logger
	store     *store.Store
	directory *entity.CachedDirectory
	refresh   *refresh.Service
	pipeline  *pipeline.Pipeline
}

func (a *app) Close() {
	if a.pipeline != nil {
		a.pipeline.Close()
	}
	if a.refresh != nil {
		a.refresh.Close()
	}
	a.store.Close()
}

func openStore(ctx context.Context, log *slog.Logger, cfg *config) (*store.Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, store.Config{
		Logger:           log,
		DSN:              cfg.PostgresDSN,
		StatementTimeout: cfg.StatementTimeout,
		MaxRows:          cfg.MaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// newDataApp wires the store, directory cache and refresh service.
func newDataApp(ctx context.Context, log *slog.Logger, cfg *config) (*app, error) {
	st, err := openStore(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, store: st}

	a.directory, err = entity.NewCachedDirectory(st.Directory(), cfg.DirectoryTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create directory cache: %w", err)
	}

	feed, err := fpl.NewClient(fpl.Config{Logger: log, BaseURL: cfg.FPLBaseURL})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create feed client: %w", err)
	}
	a.refresh, err = refresh.New(refresh.Config{
		Logger:     log,
		Source:     feed,
		Sink:       st,
		Invalidate: []refresh.Invalidator{a.directory},
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newApp wires the full question-answering graph.
func newApp(ctx context.Context, log *slog.Logger, cfg *config) (*app, error) {
	a, err := newDataApp(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	a.pipeline, err = newPipeline(log, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func loadAliases(cfg *config) (*entity.AliasTable, error) {
	if cfg.AliasesFile != "" {
		return entity.LoadAliases(cfg.AliasesFile)
	}
	return entity.DefaultAliases()
}

func newPipeline(log *slog.Logger, cfg *config, a *app) (*pipeline.Pipeline, error) {
	aliases, err := loadAliases(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load team aliases: %w", err)
	}
	resolver, err := entity.NewResolver(&entity.Config{Logger: log, Aliases: aliases, Directory: a.directory})
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	p, err := prompts.LoadPrompts()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	builder, err := prompts.NewBuilder(prompts.BuilderConfig{
		Prompts:         p,
		Aliases:         aliases,
		ChartKinds:      viz.Kinds(),
		MaxSubQuestions: cfg.MaxSubQuestions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build prompts: %w", err)
	}

	gateway, err := newGateway(log, cfg)
	if err != nil {
		return nil, err
	}
	var routes []pipeline.Route
	for _, name := range gateway.Providers() {
		routes = append(routes, pipeline.Route{Provider: name})
	}
	completer, err := pipeline.NewFailoverCompleter(&pipeline.FailoverConfig{
		Logger:    log,
		Generator: gateway,
		Routes:    routes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completer: %w", err)
	}

	selector, err := viz.NewSelector(log, builder, completer.Complete)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart selector: %w", err)
	}
	renderer, err := viz.NewRenderer(cfg.PlotsDir, plotsPrefix)
	if err != nil {
		return nil, err
	}

	pcfg := &pipeline.Config{
		Logger:         log,
		Resolver:       resolver,
		Prompts:        builder,
		Completer:      completer,
		Synthesizer:    sqlguard.NewSynthesizer(log, sqlguard.DefaultMaxCorrections),
		Executor:       a.store,
		Visualizer:     selector,
		Plots:          renderer,
		DeepWorkers:    cfg.DeepWorkers,
		RequestTimeout: cfg.RequestTimeout,
	}
	if cfg.RefreshOnDemand {
		pcfg.Refresher = a.refresh
	}
	pl, err := pipeline.New(pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return pl, nil
}

func newGateway(log *slog.Logger, cfg *config) (*llm.Gateway, error) {
	names := []string{cfg.LLMProvider}
	if cfg.LLMFallbackProvider != "" && cfg.LLMFallbackProvider != cfg.LLMProvider {
		names = append(names, cfg.LLMFallbackProvider)
	}

	var providers []llm.ProviderConfig
	for _, name := range names {
		pc := llm.ProviderConfig{RequestsPerSecond: cfg.LLMRPS, Burst: 1}
		switch name {
		case llm.ProviderAnthropic:
			if cfg.AnthropicAPIKey == "" {
				return nil, fmt.Errorf("--anthropic-api-key or ANTHROPIC_API_KEY is required for provider %s", name)
			}
			pc.Client = llm.NewAnthropicClient(log, cfg.AnthropicAPIKey, int64(cfg.MaxTokens))
			pc.Model = cfg.AnthropicModel
		case llm.ProviderOllama:
			pc.Client = llm.NewOllamaClient(log, cfg.OllamaURL, int64(cfg.MaxTokens))
			pc.Model = cfg.OllamaModel
		default:
			return nil, fmt.Errorf("unknown llm provider %q", name)
		}
		providers = append(providers, pc)
	}

	g, err := llm.NewGateway(&llm.GatewayConfig{Logger: log, Providers: providers, Timeout: cfg.LLMTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create llm gateway: %w", err)
	}
	return g, nil
}
