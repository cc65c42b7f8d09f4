// Package pipeline answers natural-language questions about the league.
//
// Direct mode resolves entities, generates one guarded SQL statement,
// executes it and optionally draws a chart. Deep mode decomposes the question
// into sub-questions, answers each in direct mode (in dependency waves, on a
// bounded worker pool) and synthesizes a written summary.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alitto/pond/v2"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
	"github.com/malbeclabs/sportsql/agent/pkg/prompts"
	"github.com/malbeclabs/sportsql/agent/pkg/sqlguard"
	"github.com/malbeclabs/sportsql/agent/pkg/viz"
	"github.com/malbeclabs/sportsql/pkg/store"
)

const (
	defaultDeepWorkers    = 4
	defaultRequestTimeout = 2 * time.Minute

	MaxQuestionLength = 1000
)

// Resolver maps names in a question to canonical entities.
type Resolver interface {
	Resolve(ctx context.Context, question string) (entity.Resolution, error)
}

// Executor runs a validated statement against the store.
type Executor interface {
	Query(ctx context.Context, sql string) (store.ResultSet, error)
}

// PlayerRefresher reloads one player's rows before answering.
type PlayerRefresher interface {
	RefreshPlayer(ctx context.Context, playerID int) error
}

// Visualizer picks a chart for a result.
type Visualizer interface {
	Select(ctx context.Context, question string, rs store.ResultSet) (viz.Spec, error)
}

// PlotStore persists a chart and returns its public path.
type PlotStore interface {
	Save(spec viz.Spec, rs store.ResultSet) (string, error)
}

type Config struct {
	Logger      *slog.Logger
	Resolver    Resolver
	Prompts     *prompts.Builder
	Completer   Completer
	Synthesizer *sqlguard.Synthesizer
	Executor    Executor

	// Optional.
	Refresher  PlayerRefresher
	Visualizer Visualizer
	Plots      PlotStore

	DeepWorkers    int
	RequestTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Resolver == nil {
		return errors.New("resolver is required")
	}
	if c.Prompts == nil {
		return errors.New("prompt builder is required")
	}
	if c.Completer == nil {
		return errors.New("completer is required")
	}
	if c.Synthesizer == nil {
		return errors.New("synthesizer is required")
	}
	if c.Executor == nil {
		return errors.New("executor is required")
	}
	if (c.Visualizer == nil) != (c.Plots == nil) {
		return errors.New("visualizer and plot store must be set together")
	}
	if c.DeepWorkers <= 0 {
		c.DeepWorkers = defaultDeepWorkers
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return nil
}

type Pipeline struct {
	log  *slog.Logger
	cfg  *Config
	pool pond.ResultPool[SubQuery]
}

func New(cfg *Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		log:  cfg.Logger,
		cfg:  cfg,
		pool: pond.NewResultPool[SubQuery](cfg.DeepWorkers),
	}, nil
}

// Close waits for running sub-questions and stops the worker pool.
func (p *Pipeline) Close() {
	p.pool.StopAndWait()
}

type Mode string

const (
	ModeDirect Mode = "direct"
	ModeDeep   Mode = "deep"
)

// ErrInvalidRequest is matched by request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

type requestError struct {
	msg string
}

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == ErrInvalidRequest }

// Request is a question submitted to the pipeline.
type Request struct {
	Question      string `json:"question"`
	Mode          Mode   `json:"mode,omitempty"`
	Visualization bool   `json:"visualization,omitempty"`
}

// Normalize trims the question, defaults the mode and validates both.
func (r *Request) Normalize() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return &requestError{msg: "question is required"}
	}
	if utf8.RuneCountInString(r.Question) > MaxQuestionLength {
		return &requestError{msg: "question is too long"}
	}
	if r.Mode == "" {
		r.Mode = ModeDirect
	}
	switch r.Mode {
	case ModeDirect, ModeDeep:
	default:
		return &requestError{msg: "mode must be direct or deep"}
	}
	return nil
}

// DirectResponse is the answer to a direct-mode question.
type DirectResponse struct {
	SQL                string          `json:"sql"`
	Data               store.ResultSet `json:"data"`
	PlotPath           string          `json:"plot_path,omitempty"`
	VisualizationError string          `json:"visualization_error,omitempty"`
}

// Execution is the outcome of one sub-question.
type Execution struct {
	Success bool             `json:"success"`
	Data    *store.ResultSet `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// SubQuery is one answered step of a deep-research plan.
type SubQuery struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	DependsOn []string  `json:"depends_on,omitempty"`
	Rationale string    `json:"rationale,omitempty"`
	SQL       string    `json:"sql,omitempty"`
	Execution Execution `json:"execution"`
}

// DeepResponse is the answer to a deep-mode question.
type DeepResponse struct {
	Mode           Mode       `json:"mode"`
	SubQueries     []SubQuery `json:"subqueries"`
	Summary        string     `json:"summary,omitempty"`
	SynthesisError string     `json:"synthesis_error,omitempty"`
}
