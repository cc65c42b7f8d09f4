package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ErrInvalidPlan is returned when the decomposition reply cannot be used.
var ErrInvalidPlan = errors.New("invalid research plan")

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

type decomposeResponse struct {
	SubQuestions []struct {
		ID        string   `json:"id"`
		Question  string   `json:"question"`
		DependsOn []string `json:"depends_on"`
		Rationale string   `json:"rationale"`
	} `json:"subquestions"`
}

// step is a planned sub-question.
type step struct {
	ID        string
	Question  string
	DependsOn []string
	Rationale string
}

// decompose breaks a question into ordered sub-questions.
func (p *Pipeline) decompose(ctx context.Context, question string) ([]step, error) {
	response, err := p.cfg.Completer.Complete(ctx, p.cfg.Prompts.Decompose(question))
	if err != nil {
		return nil, fmt.Errorf("decomposition failed: %w", err)
	}
	steps, dropped, err := parsePlan(response, p.cfg.Prompts.MaxSubQuestions())
	if err != nil {
		p.log.Warn("pipeline: unusable decomposition", "error", err, "responseLen", len(response))
		return nil, err
	}
	for _, d := range dropped {
		p.log.Warn("pipeline: dropped dependency", "subquestion", d[0], "depends_on", d[1])
	}
	return steps, nil
}

// parsePlan validates the decomposition reply. Ids default to q{n}; a
// dependency on an unknown or later id is dropped and reported as
// [id, dependency].
func parsePlan(response string, limit int) ([]step, [][2]string, error) {
	raw := jsonObjectRe.FindString(response)
	if raw == "" {
		return nil, nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidPlan)
	}
	var resp decomposeResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	var (
		steps   []step
		dropped [][2]string
		seen    = map[string]bool{}
	)
	for _, sq := range resp.SubQuestions {
		q := strings.TrimSpace(sq.Question)
		if q == "" {
			continue
		}
		if len(steps) == limit {
			break
		}
		id := strings.TrimSpace(sq.ID)
		if id == "" || seen[id] {
			id = fmt.Sprintf("q%d", len(steps)+1)
		}
		for seen[id] {
			id += "_"
		}

		var deps []string
		for _, d := range sq.DependsOn {
			d = strings.TrimSpace(d)
			if !seen[d] {
				dropped = append(dropped, [2]string{id, d})
				continue
			}
			if !slices.Contains(deps, d) {
				deps = append(deps, d)
			}
		}

		seen[id] = true
		steps = append(steps, step{ID: id, Question: q, DependsOn: deps, Rationale: strings.TrimSpace(sq.Rationale)})
	}
	if len(steps) == 0 {
		return nil, nil, fmt.Errorf("%w: no sub-questions", ErrInvalidPlan)
	}
	return steps, dropped, nil
}

// waves groups steps so that every step runs after all of its dependencies.
// Steps keep their declared order inside a wave.
func waves(steps []step) [][]int {
	level := make(map[string]int, len(steps))
	var out [][]int
	for i, s := range steps {
		l := 0
		for _, d := range s.DependsOn {
			l = max(l, level[d]+1)
		}
		level[s.ID] = l
		for len(out) <= l {
			out = append(out, nil)
		}
		out[l] = append(out[l], i)
	}
	return out
}
