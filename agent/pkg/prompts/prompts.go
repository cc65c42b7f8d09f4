// Package prompts builds the LLM prompts used by the query pipeline. The
// builder is pure: identical inputs always produce byte-identical prompts.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
	"github.com/malbeclabs/sportsql/agent/pkg/llm"
	"github.com/malbeclabs/sportsql/agent/pkg/sqlguard"
	"github.com/malbeclabs/sportsql/pkg/schema"
)

//go:embed *.md
var promptsFS embed.FS

// Prompts holds the raw prompt templates.
type Prompts struct {
	Generate   string
	Examples   string
	Correct    string
	Decompose  string
	Visualize  string
	Synthesize string
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Generate, err = loadPrompt("GENERATE.md"); err != nil {
		return nil, fmt.Errorf("failed to load GENERATE: %w", err)
	}
	if p.Examples, err = loadPrompt("EXAMPLES.md"); err != nil {
		return nil, fmt.Errorf("failed to load EXAMPLES: %w", err)
	}
	if p.Correct, err = loadPrompt("CORRECT.md"); err != nil {
		return nil, fmt.Errorf("failed to load CORRECT: %w", err)
	}
	if p.Decompose, err = loadPrompt("DECOMPOSE.md"); err != nil {
		return nil, fmt.Errorf("failed to load DECOMPOSE: %w", err)
	}
	if p.Visualize, err = loadPrompt("VISUALIZE.md"); err != nil {
		return nil, fmt.Errorf("failed to load VISUALIZE: %w", err)
	}
	if p.Synthesize, err = loadPrompt("SYNTHESIZE.md"); err != nil {
		return nil, fmt.Errorf("failed to load SYNTHESIZE: %w", err)
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := promptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Builder renders prompts. The static system prompt (schema, alias table and
// exemplars) is rendered once in NewBuilder and reused.
type Builder struct {
	prompts       *Prompts
	generate      string
	decompose     string
	visualize     string
	maxSubQueries int
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	Prompts         *Prompts
	Aliases         *entity.AliasTable
	ChartKinds      []string
	MaxSubQuestions int
}

func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Prompts == nil {
		return nil, errors.New("prompts are required")
	}
	if cfg.Aliases == nil {
		return nil, errors.New("alias table is required")
	}
	if len(cfg.ChartKinds) == 0 {
		return nil, errors.New("chart kinds are required")
	}
	if cfg.MaxSubQuestions <= 0 {
		return nil, errors.New("max sub-questions must be positive")
	}

	examples := strings.ReplaceAll(cfg.Prompts.Examples, "{{NO_MATCH_SQL}}", sqlguard.NoMatchSQL)
	generate := strings.NewReplacer(
		"{{SCHEMA}}", strings.TrimSpace(schema.Describe()),
		"{{TEAM_ALIASES}}", strings.TrimSpace(cfg.Aliases.Render()),
		"{{EXAMPLES}}", examples,
	).Replace(cfg.Prompts.Generate)

	decompose := strings.NewReplacer(
		"{{SCHEMA}}", strings.TrimSpace(schema.Describe()),
		"{{MAX_SUBQUESTIONS}}", fmt.Sprint(cfg.MaxSubQuestions),
	).Replace(cfg.Prompts.Decompose)

	visualize := strings.ReplaceAll(cfg.Prompts.Visualize, "{{CHART_KINDS}}", strings.Join(cfg.ChartKinds, ", "))

	return &Builder{
		prompts:       cfg.Prompts,
		generate:      generate,
		decompose:     decompose,
		visualize:     visualize,
		maxSubQueries: cfg.MaxSubQuestions,
	}, nil
}

// Prior is the outcome of an earlier sub-question that a later one depends on.
type Prior struct {
	ID       string
	Question string
	SQL      string
	Result   string
}

// Parent carries the deep-research context of a sub-question.
type Parent struct {
	Question string
	Priors   []Prior
}

// SQLRequest is the input to SQL and Correction.
type SQLRequest struct {
	Question   string
	Resolution entity.Resolution
	Parent     *Parent
}

// SQL builds the generation prompt for a question.
func (b *Builder) SQL(req SQLRequest) llm.Prompt {
	return llm.Prompt{System: b.generate, User: b.sqlUser(req)}
}

// Correction builds a re-prompt naming why the previous SQL was rejected.
func (b *Builder) Correction(req SQLRequest, previousSQL, reason, detail string) llm.Prompt {
	correct := strings.NewReplacer(
		"{{PREVIOUS_SQL}}", previousSQL,
		"{{REASON}}", reason,
		"{{DETAIL}}", detail,
	).Replace(b.prompts.Correct)
	return llm.Prompt{System: b.generate, User: b.sqlUser(req) + "\n\n" + correct}
}

func (b *Builder) sqlUser(req SQLRequest) string {
	var sb strings.Builder
	if req.Parent != nil {
		sb.WriteString("## Research context\n")
		fmt.Fprintf(&sb, "This is one step of a larger question: %s\n", req.Parent.Question)
		for _, p := range req.Parent.Priors {
			fmt.Fprintf(&sb, "\nEarlier step %s: %s\n", p.ID, p.Question)
			if p.SQL != "" {
				fmt.Fprintf(&sb, "SQL: %s\n", p.SQL)
			}
			fmt.Fprintf(&sb, "Result:\n%s\n", strings.TrimSpace(p.Result))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Resolved entities\n")
	sb.WriteString(RenderResolution(req.Resolution))
	sb.WriteString("\n## Question\n")
	sb.WriteString(strings.TrimSpace(req.Question))
	return sb.String()
}

// RenderResolution formats resolved entities for a prompt.
func RenderResolution(res entity.Resolution) string {
	if res.IsNoMatch() {
		return "NO_MATCH: no known player or team was recognised in the question.\n" +
			"Respond with exactly this statement, which returns zero rows:\n" +
			sqlguard.NoMatchSQL + "\n"
	}
	if res.Status == entity.StatusNone {
		return "No specific player or team is named; answer across all players and teams.\n"
	}
	var sb strings.Builder
	for _, m := range res.Mentions {
		switch m.Kind {
		case entity.KindTeam:
			c := m.Candidates[0]
			fmt.Fprintf(&sb, "- %q -> team %s (%s). Filter with team_name LIKE '%%%s%%'.\n",
				m.Span, c.Canonical, c.ShortName, escapeLiteral(c.Canonical))
		case entity.KindPlayer:
			if !m.Ambiguous() {
				fmt.Fprintf(&sb, "- %q -> player %s\n", m.Span, describePlayer(m.Candidates[0]))
				continue
			}
			fmt.Fprintf(&sb, "- %q -> player, ambiguous; candidates in order of preference:\n", m.Span)
			for i, c := range m.Candidates {
				fmt.Fprintf(&sb, "    %d. %s\n", i+1, describePlayer(c))
			}
		}
	}
	return sb.String()
}

func describePlayer(c entity.Candidate) string {
	return fmt.Sprintf("%s (player_id %d, second_name '%s', web_name '%s', team %s, total_points %d)",
		c.Canonical, c.PlayerID, escapeLiteral(c.SecondName), escapeLiteral(c.WebName), c.TeamName, c.TotalPoints)
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Decompose builds the deep-research planning prompt.
func (b *Builder) Decompose(question string) llm.Prompt {
	return llm.Prompt{System: b.decompose, User: strings.TrimSpace(question)}
}

// Visualize builds the chart selection prompt from the result shape.
func (b *Builder) Visualize(question, shape string) llm.Prompt {
	user := fmt.Sprintf("Question: %s\n\nResult shape:\n%s", strings.TrimSpace(question), shape)
	return llm.Prompt{System: b.visualize, User: user}
}

// Synthesize builds the final answer prompt for deep research.
func (b *Builder) Synthesize(question, results string) llm.Prompt {
	user := fmt.Sprintf("User Question: %s\n\nData gathered:\n%s\n\nAnswer the question from the data above.",
		strings.TrimSpace(question), results)
	return llm.Prompt{System: b.prompts.Synthesize, User: user}
}

// MaxSubQuestions is the cap rendered into the decomposition prompt.
func (b *Builder) MaxSubQuestions() int {
	return b.maxSubQueries
}
