package sqlguard

import (
	"context"
	"errors"
	"log/slog"
)

// DefaultMaxCorrections is the number of corrective re-prompts allowed after
// the first completion.
const DefaultMaxCorrections = 2

// Regenerate asks the LLM for a corrected completion given the rejection of
// the previous one.
type Regenerate func(ctx context.Context, rejection *Rejection) (string, error)

type Options struct {
	// RequireEmpty is set when the question names a player or team that could
	// not be resolved. A provably empty statement is kept; anything else,
	// including a rejected candidate, is replaced with NoMatchSQL without a
	// correction round.
	RequireEmpty bool

	// Used is the number of corrections already spent from the shared
	// budget, e.g. on execution errors.
	Used int
}

type Synthesizer struct {
	log            *slog.Logger
	maxCorrections int
}

func NewSynthesizer(log *slog.Logger, maxCorrections int) *Synthesizer {
	if maxCorrections < 0 {
		maxCorrections = DefaultMaxCorrections
	}
	return &Synthesizer{log: log, maxCorrections: maxCorrections}
}

// MaxCorrections returns the configured corrective re-prompt budget.
func (s *Synthesizer) MaxCorrections() int {
	return s.maxCorrections
}

// Synthesize validates completion, re-prompting through regenerate until a
// valid statement is produced or the correction budget is spent. Errors from
// regenerate are returned unchanged.
//
// Budget: opts.Used corrections were spent before this call; at most
// MaxCorrections()-opts.Used more are made here.
func (s *Synthesizer) Synthesize(ctx context.Context, completion string, opts Options, regenerate Regenerate) (Statement, error) {
	attempts := 1
	for {
		stmt, err := Parse(completion)
		if err == nil {
			MetricSynthesisAttempts.Observe(float64(attempts))
			if opts.RequireEmpty && !stmt.Empty {
				MetricRejectionsTotal.WithLabelValues(string(ReasonNotEmpty)).Inc()
				s.log.Info("sqlguard: replacing non-empty statement for unresolved question", "sql", stmt.SQL)
				return Statement{SQL: NoMatchSQL, Empty: true}, nil
			}
			return stmt, nil
		}

		var rej *Rejection
		if !errors.As(err, &rej) {
			return Statement{}, err
		}
		MetricRejectionsTotal.WithLabelValues(string(rej.Reason)).Inc()
		s.log.Warn("sqlguard: rejected candidate", "attempt", attempts, "reason", rej.Reason, "detail", rej.Detail)

		if opts.RequireEmpty {
			return Statement{SQL: NoMatchSQL, Empty: true}, nil
		}
		if opts.Used+attempts > s.maxCorrections || regenerate == nil {
			MetricSynthesisAttempts.Observe(float64(attempts))
			return Statement{}, &SynthesisError{Attempts: attempts, Last: rej}
		}
		if err := ctx.Err(); err != nil {
			return Statement{}, err
		}

		completion, err = regenerate(ctx, rej)
		if err != nil {
			return Statement{}, err
		}
		attempts++
	}
}
