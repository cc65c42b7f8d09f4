package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
	"github.com/malbeclabs/sportsql/agent/pkg/prompts"
	"github.com/malbeclabs/sportsql/agent/pkg/sqlguard"
	"github.com/malbeclabs/sportsql/pkg/store"
)

const reasonExecution = "execution_error"

// answer is one generated and executed statement.
type answer struct {
	sql  string
	data store.ResultSet
}

// Direct answers a question with a single statement.
func (p *Pipeline) Direct(ctx context.Context, req Request) (*DirectResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	ans, err := p.answer(ctx, req.Question, nil)
	observe(ModeDirect, start, err)
	if err != nil {
		return nil, err
	}

	resp := &DirectResponse{SQL: ans.sql, Data: ans.data}
	if req.Visualization && p.cfg.Visualizer != nil {
		path, err := p.Visualize(ctx, req.Question, ans.data)
		switch {
		case err == nil:
			resp.PlotPath = path
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			resp.VisualizationError = err.Error()
		}
	}
	return resp, nil
}

// Visualize picks, renders and stores a chart for rs. It returns
// viz.ErrNoVisualization when there is nothing to draw.
func (p *Pipeline) Visualize(ctx context.Context, question string, rs store.ResultSet) (string, error) {
	if p.cfg.Visualizer == nil {
		return "", errors.New("visualization is not configured")
	}
	spec, err := p.cfg.Visualizer.Select(ctx, question, rs)
	if err != nil {
		return "", err
	}
	path, err := p.cfg.Plots.Save(spec, rs)
	if err != nil {
		p.log.Error("pipeline: failed to save plot", "error", err)
		return "", fmt.Errorf("failed to save plot: %w", err)
	}
	return path, nil
}

// answer runs resolve, generate, guard and execute for one question. Guard
// rejections and execution errors share the synthesizer's correction budget.
func (p *Pipeline) answer(ctx context.Context, question string, parent *prompts.Parent) (answer, error) {
	res, err := p.cfg.Resolver.Resolve(ctx, question)
	if err != nil {
		return answer{}, err
	}
	p.log.Debug("pipeline: resolved entities", "question", question, "status", res.Status, "mentions", len(res.Mentions))

	p.refreshPlayer(ctx, res)

	req := prompts.SQLRequest{Question: question, Resolution: res, Parent: parent}
	completion, err := p.cfg.Completer.Complete(ctx, p.cfg.Prompts.SQL(req))
	if err != nil {
		return answer{}, fmt.Errorf("sql generation failed: %w", err)
	}

	used := 0
	regenerate := func(ctx context.Context, rej *sqlguard.Rejection) (string, error) {
		used++
		p.log.Info("pipeline: regenerating rejected sql", "question", question, "reason", rej.Reason)
		return p.cfg.Completer.Complete(ctx, p.cfg.Prompts.Correction(req, rej.SQL, string(rej.Reason), rej.Detail))
	}
	opts := sqlguard.Options{RequireEmpty: res.IsNoMatch()}

	for {
		opts.Used = used
		stmt, err := p.cfg.Synthesizer.Synthesize(ctx, completion, opts, regenerate)
		if err != nil {
			return answer{}, err
		}

		data, err := p.cfg.Executor.Query(ctx, stmt.SQL)
		if err == nil {
			return answer{sql: stmt.SQL, data: data}, nil
		}

		var execErr *store.ExecutionError
		if !errors.As(err, &execErr) || used >= p.cfg.Synthesizer.MaxCorrections() || opts.RequireEmpty {
			return answer{sql: stmt.SQL}, err
		}
		used++
		p.log.Info("pipeline: retrying failed query", "question", question, "attempt", used, "error", err)
		completion, err = p.cfg.Completer.Complete(ctx, p.cfg.Prompts.Correction(req, stmt.SQL, reasonExecution, execErr.Error()))
		if err != nil {
			return answer{sql: stmt.SQL}, fmt.Errorf("sql regeneration failed: %w", err)
		}
	}
}

// refreshPlayer reloads the history of a single unambiguous player mention.
// Failures are logged; the question is answered from the stored data.
func (p *Pipeline) refreshPlayer(ctx context.Context, res entity.Resolution) {
	if p.cfg.Refresher == nil {
		return
	}
	players := res.Players()
	if len(players) != 1 || players[0].Ambiguous() {
		return
	}
	id := players[0].Candidates[0].PlayerID
	if err := p.cfg.Refresher.RefreshPlayer(ctx, id); err != nil {
		p.log.Warn("pipeline: on-demand player refresh failed", "player_id", id, "error", err)
	}
}
