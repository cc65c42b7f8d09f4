package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/malbeclabs/sportsql/agent/pkg/prompts"
	"github.com/malbeclabs/sportsql/agent/pkg/sqlguard"
)

// Deep answers a research question. Sub-question failures are recorded in
// the response; only planning and cancellation fail the call.
func (p *Pipeline) Deep(ctx context.Context, req Request) (*DeepResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.deep(ctx, req.Question)
	observe(ModeDeep, start, err)
	return resp, err
}

func (p *Pipeline) deep(ctx context.Context, question string) (*DeepResponse, error) {
	steps, err := p.decompose(ctx, question)
	if err != nil {
		return nil, err
	}
	p.log.Info("pipeline: decomposed question", "question", question, "subquestions", len(steps))

	results := make([]SubQuery, len(steps))
	done := make(map[string]int, len(steps))
	for _, wave := range waves(steps) {
		group := p.pool.NewGroupContext(ctx)
		for _, i := range wave {
			s := steps[i]
			parent := priorsFor(question, s, results, done)
			group.Submit(func() SubQuery {
				return p.runStep(ctx, s, parent)
			})
		}
		out, err := group.Wait()
		if err != nil {
			return nil, err
		}
		for j, i := range wave {
			results[i] = out[j]
			done[steps[i].ID] = i
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &DeepResponse{Mode: ModeDeep, SubQueries: results}
	summary, err := p.summarize(ctx, question, results)
	if err != nil {
		p.log.Warn("pipeline: synthesis failed", "error", err)
		resp.SynthesisError = err.Error()
	} else {
		resp.Summary = summary
	}
	return resp, nil
}

// priorsFor collects the finished dependencies of s.
func priorsFor(question string, s step, results []SubQuery, done map[string]int) *prompts.Parent {
	parent := &prompts.Parent{Question: question}
	for _, d := range s.DependsOn {
		i, ok := done[d]
		if !ok {
			continue
		}
		r := results[i]
		parent.Priors = append(parent.Priors, prompts.Prior{
			ID:       r.ID,
			Question: r.Question,
			SQL:      r.SQL,
			Result:   FormatExecution(r.Execution),
		})
	}
	return parent
}

func (p *Pipeline) runStep(ctx context.Context, s step, parent *prompts.Parent) SubQuery {
	sq := SubQuery{ID: s.ID, Question: s.Question, DependsOn: s.DependsOn, Rationale: s.Rationale}
	ans, err := p.answer(ctx, s.Question, parent)
	sq.SQL = ans.sql
	if err != nil {
		var synth *sqlguard.SynthesisError
		if sq.SQL == "" && errors.As(err, &synth) && synth.Last != nil {
			sq.SQL = synth.Last.SQL
		}
		p.log.Info("pipeline: sub-question failed", "id", s.ID, "error", err)
		MetricSubQueries.WithLabelValues("error").Inc()
		sq.Execution = Execution{Success: false, Error: err.Error()}
		return sq
	}
	MetricSubQueries.WithLabelValues("success").Inc()
	data := ans.data
	sq.Execution = Execution{Success: true, Data: &data}
	return sq
}

func (p *Pipeline) summarize(ctx context.Context, question string, results []SubQuery) (string, error) {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "## %s: %s\n", r.ID, r.Question)
		if r.Rationale != "" {
			fmt.Fprintf(&sb, "**Rationale**: %s\n", r.Rationale)
		}
		if r.SQL != "" {
			fmt.Fprintf(&sb, "**SQL**: ```sql\n%s\n```\n", r.SQL)
		}
		fmt.Fprintf(&sb, "**Results**:\n%s\n\n", FormatExecution(r.Execution))
	}

	response, err := p.cfg.Completer.Complete(ctx, p.cfg.Prompts.Synthesize(question, sb.String()))
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}
	return strings.TrimSpace(response), nil
}
