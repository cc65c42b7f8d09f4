package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/sportsql/agent/pkg/llm"
	"github.com/malbeclabs/sportsql/pkg/fpl"
)

const (
	defaultAnthropicModel  = "claude-sonnet-4-5"
	defaultOllamaURL       = "http://localhost:11434"
	defaultOllamaModel     = "llama3.1"
	defaultLLMTimeout      = 30 * time.Second
	defaultLLMRPS          = 2.0
	defaultMaxTokens       = 1024
	defaultMaxRows         = 1000
	defaultMaxSubQuestions = 10
	defaultDeepWorkers     = 4
	defaultDirectoryTTL    = 10 * time.Minute
	defaultRequestTimeout  = 2 * time.Minute
	defaultListenAddr      = ":8080"
	defaultMetricsAddr     = ":9090"
	defaultPlotsDir        = "plots"
	defaultRefreshSchedule = "0 6 * * *"
)

// config holds every setting. Flags default to the matching environment
// variable, so an explicit flag wins over the environment.
type config struct {
	Verbose bool

	LLMProvider         string
	LLMFallbackProvider string
	AnthropicAPIKey     string
	AnthropicModel      string
	OllamaURL           string
	OllamaModel         string
	LLMTimeout          time.Duration
	LLMRPS              float64
	MaxTokens           int

	PostgresDSN      string
	MaxRows          int
	StatementTimeout time.Duration

	AliasesFile     string
	DirectoryTTL    time.Duration
	MaxSubQuestions int
	DeepWorkers     int
	RequestTimeout  time.Duration
	RefreshOnDemand bool
	PlotsDir        string

	FPLBaseURL string
}

// envErrors collects malformed environment values while flags are bound.
type envErrors []error

func (e *envErrors) add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

func (c *config) bindGlobal(fs *flag.FlagSet) error {
	var errs envErrors

	fs.BoolVarP(&c.Verbose, "verbose", "v", getenvBool("VERBOSE", false), "set debug logging level")

	fs.StringVar(&c.LLMProvider, "llm-provider", getenv("LLM_PROVIDER", llm.ProviderAnthropic), "LLM provider (anthropic, ollama) [LLM_PROVIDER]")
	fs.StringVar(&c.LLMFallbackProvider, "llm-fallback-provider", getenv("LLM_FALLBACK_PROVIDER", ""), "provider tried when the primary is unavailable [LLM_FALLBACK_PROVIDER]")
	fs.StringVar(&c.AnthropicAPIKey, "anthropic-api-key", getenv("ANTHROPIC_API_KEY", ""), "Anthropic API key [ANTHROPIC_API_KEY]")
	fs.StringVar(&c.AnthropicModel, "anthropic-model", getenv("ANTHROPIC_MODEL", defaultAnthropicModel), "Anthropic model [ANTHROPIC_MODEL]")
	fs.StringVar(&c.OllamaURL, "ollama-url", getenv("OLLAMA_URL", defaultOllamaURL), "Ollama base URL [OLLAMA_URL]")
	fs.StringVar(&c.OllamaModel, "ollama-model", getenv("OLLAMA_MODEL", defaultOllamaModel), "Ollama model [OLLAMA_MODEL]")

	timeout, err := getenvDuration("LLM_TIMEOUT", defaultLLMTimeout)
	errs.add(err)
	fs.DurationVar(&c.LLMTimeout, "llm-timeout", timeout, "per-call LLM timeout [LLM_TIMEOUT]")
	rps, err := getenvFloat("LLM_RPS", defaultLLMRPS)
	errs.add(err)
	fs.Float64Var(&c.LLMRPS, "llm-rps", rps, "client-side requests per second per provider, 0 for unlimited [LLM_RPS]")
	maxTokens, err := getenvInt("LLM_MAX_TOKENS", defaultMaxTokens)
	errs.add(err)
	fs.IntVar(&c.MaxTokens, "llm-max-tokens", maxTokens, "completion token limit [LLM_MAX_TOKENS]")

	fs.StringVar(&c.PostgresDSN, "postgres-dsn", getenv("POSTGRES_DSN", ""), "Postgres connection string [POSTGRES_DSN]")
	maxRows, err := getenvInt("MAX_ROWS", defaultMaxRows)
	errs.add(err)
	fs.IntVar(&c.MaxRows, "max-rows", maxRows, "row cap per query [MAX_ROWS]")
	stmtTimeout, err := getenvDuration("STATEMENT_TIMEOUT", 10*time.Second)
	errs.add(err)
	fs.DurationVar(&c.StatementTimeout, "statement-timeout", stmtTimeout, "per-statement timeout [STATEMENT_TIMEOUT]")

	fs.StringVar(&c.AliasesFile, "aliases-file", getenv("ALIASES_FILE", ""), "YAML team alias table replacing the built-in one [ALIASES_FILE]")
	ttl, err := getenvDuration("DIRECTORY_TTL", defaultDirectoryTTL)
	errs.add(err)
	fs.DurationVar(&c.DirectoryTTL, "directory-ttl", ttl, "player/team directory cache TTL [DIRECTORY_TTL]")
	maxSub, err := getenvInt("MAX_SUBQUESTIONS", defaultMaxSubQuestions)
	errs.add(err)
	fs.IntVar(&c.MaxSubQuestions, "max-subquestions", maxSub, "deep-mode sub-question cap [MAX_SUBQUESTIONS]")
	workers, err := getenvInt("DEEP_WORKERS", defaultDeepWorkers)
	errs.add(err)
	fs.IntVar(&c.DeepWorkers, "deep-workers", workers, "concurrent deep-mode sub-questions [DEEP_WORKERS]")
	reqTimeout, err := getenvDuration("REQUEST_TIMEOUT", defaultRequestTimeout)
	errs.add(err)
	fs.DurationVar(&c.RequestTimeout, "request-timeout", reqTimeout, "timeout per question [REQUEST_TIMEOUT]")
	fs.BoolVar(&c.RefreshOnDemand, "refresh-on-demand", getenvBool("REFRESH_ON_DEMAND", false), "reload a single resolved player's history before answering [REFRESH_ON_DEMAND]")
	fs.StringVar(&c.PlotsDir, "plots-dir", getenv("PLOTS_DIR", defaultPlotsDir), "directory for rendered charts [PLOTS_DIR]")

	fs.StringVar(&c.FPLBaseURL, "fpl-base-url", getenv("FPL_BASE_URL", fpl.DefaultBaseURL), "upstream feed base URL [FPL_BASE_URL]")

	return errors.Join(errs...)
}

func (c *config) validate() error {
	if c.PostgresDSN == "" {
		return errors.New("--postgres-dsn or POSTGRES_DSN is required")
	}
	return nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return i, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return f, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return d, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
