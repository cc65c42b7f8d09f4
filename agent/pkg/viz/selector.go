package viz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/malbeclabs/sportsql/agent/pkg/llm"
	"github.com/malbeclabs/sportsql/agent/pkg/prompts"
	"github.com/malbeclabs/sportsql/pkg/store"
)

// GenerateFunc sends a prompt to the LLM and returns the completion.
type GenerateFunc func(ctx context.Context, prompt llm.Prompt) (string, error)

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

type Selector struct {
	log      *slog.Logger
	prompts  *prompts.Builder
	generate GenerateFunc
}

func NewSelector(log *slog.Logger, builder *prompts.Builder, generate GenerateFunc) (*Selector, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if builder == nil {
		return nil, errors.New("prompt builder is required")
	}
	if generate == nil {
		return nil, errors.New("generate func is required")
	}
	return &Selector{log: log, prompts: builder, generate: generate}, nil
}

// Select asks the LLM for a chart. A failed call or an invalid choice falls
// back to a default chart. ErrNoVisualization is returned for results with
// nothing to draw.
func (s *Selector) Select(ctx context.Context, question string, rs store.ResultSet) (Spec, error) {
	if !drawable(rs) {
		return Spec{}, ErrNoVisualization
	}

	completion, err := s.generate(ctx, s.prompts.Visualize(question, DescribeShape(rs)))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Spec{}, ctxErr
		}
		s.log.Warn("viz: chart selection failed, using default", "error", err)
		MetricSelections.WithLabelValues("fallback").Inc()
		return fallback(question, rs)
	}

	spec, err := parseSpec(completion)
	if err == nil {
		err = validate(spec, rs)
	}
	if err != nil {
		s.log.Info("viz: invalid chart choice, using default", "error", err)
		MetricSelections.WithLabelValues("fallback").Inc()
		return fallback(question, rs)
	}
	if spec.Title == "" {
		spec.Title = question
	}
	MetricSelections.WithLabelValues(string(spec.Kind)).Inc()
	return spec, nil
}

func parseSpec(completion string) (Spec, error) {
	raw := jsonObjectRe.FindString(completion)
	if raw == "" {
		return Spec{}, errors.New("no JSON object in response")
	}
	var spec Spec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return Spec{}, fmt.Errorf("malformed chart choice: %w", err)
	}
	spec.Kind = Kind(strings.ToLower(strings.TrimSpace(string(spec.Kind))))
	spec.Kind = Kind(strings.ReplaceAll(string(spec.Kind), " ", "_"))
	return spec, nil
}
