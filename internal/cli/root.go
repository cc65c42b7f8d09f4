package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func Run() ExitCode {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "sportsql",
		Short:         "Answer Premier League questions with SQL.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	cfg := &config{}
	if err := cfg.bindGlobal(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeError
	}

	cmds := []interface{ Command() (*cobra.Command, error) }{
		NewServeCmd(cfg),
		NewAskCmd(cfg),
		NewRefreshCmd(cfg),
		NewMigrateCmd(cfg),
		NewCheckSchemaCmd(cfg),
	}
	for _, c := range cmds {
		cmd, err := c.Command()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCodeError
		}
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sportsql %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeError
	}
	return exitCodeSuccess
}
