package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/sportsql/agent/pkg/pipeline"
	"github.com/malbeclabs/sportsql/pkg/logger"
	"github.com/malbeclabs/sportsql/pkg/store"
)

type AskCmd struct {
	cfg *config

	deep      bool
	visualize bool
	json      bool
}

func NewAskCmd(cfg *config) *AskCmd {
	return &AskCmd{cfg: cfg}
}

func (c *AskCmd) Command() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs go to stderr so stdout carries only the answer.
			log := logger.NewWithWriter(os.Stderr, c.cfg.Verbose)
			return c.run(cmd.Context(), log, cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}
	cmd.Flags().BoolVar(&c.deep, "deep", false, "decompose the question into sub-questions")
	cmd.Flags().BoolVar(&c.visualize, "visualize", false, "render a chart for a direct answer")
	cmd.Flags().BoolVar(&c.json, "json", false, "print the response as JSON")
	return cmd, nil
}

func (c *AskCmd) run(ctx context.Context, log *slog.Logger, out io.Writer, question string) error {
	a, err := newApp(ctx, log, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	req := pipeline.Request{Question: question, Mode: pipeline.ModeDirect, Visualization: c.visualize}
	if c.deep {
		req.Mode = pipeline.ModeDeep
		resp, err := a.pipeline.Deep(ctx, req)
		if err != nil {
			return err
		}
		if c.json {
			return printJSON(out, resp)
		}
		printDeep(out, resp)
		return nil
	}

	resp, err := a.pipeline.Direct(ctx, req)
	if err != nil {
		return err
	}
	if c.json {
		return printJSON(out, resp)
	}
	fmt.Fprintf(out, "SQL:\n%s\n\n", resp.SQL)
	printResult(out, resp.Data)
	if resp.PlotPath != "" {
		fmt.Fprintln(out, "Plot:", resp.PlotPath)
	}
	if resp.VisualizationError != "" {
		fmt.Fprintln(out, "Visualization:", resp.VisualizationError)
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDeep(out io.Writer, resp *pipeline.DeepResponse) {
	for _, sq := range resp.SubQueries {
		fmt.Fprintf(out, "## %s: %s\n", sq.ID, sq.Question)
		if len(sq.DependsOn) > 0 {
			fmt.Fprintf(out, "Depends on: %s\n", strings.Join(sq.DependsOn, ", "))
		}
		if sq.SQL != "" {
			fmt.Fprintf(out, "SQL:\n%s\n", sq.SQL)
		}
		if sq.Execution.Success && sq.Execution.Data != nil {
			printResult(out, *sq.Execution.Data)
		} else {
			fmt.Fprintln(out, "Error:", sq.Execution.Error)
		}
		fmt.Fprintln(out)
	}
	if resp.Summary != "" {
		fmt.Fprintf(out, "Summary:\n%s\n", resp.Summary)
	}
	if resp.SynthesisError != "" {
		fmt.Fprintln(out, "Summary failed:", resp.SynthesisError)
	}
}

func printResult(out io.Writer, rs store.ResultSet) {
	if len(rs.Rows) == 0 {
		fmt.Fprintln(out, "(no rows)")
		return
	}
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(rs.Headers)
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cell(v)
		}
		table.Append(cells)
	}
	table.Render()
	if rs.Truncated {
		fmt.Fprintln(out, "(result truncated by the row limit)")
	}
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprint(v)
	}
}
