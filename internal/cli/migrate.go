package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/sportsql/pkg/logger"
)

type MigrateCmd struct {
	cfg *config
}

func NewMigrateCmd(cfg *config) *MigrateCmd {
	return &MigrateCmd{cfg: cfg}
}

func (c *MigrateCmd) Command() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(c.cfg.Verbose)
			st, err := openStore(cmd.Context(), log, c.cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			return nil
		},
	}, nil
}

type CheckSchemaCmd struct {
	cfg *config
}

func NewCheckSchemaCmd(cfg *config) *CheckSchemaCmd {
	return &CheckSchemaCmd{cfg: cfg}
}

func (c *CheckSchemaCmd) Command() (*cobra.Command, error) {
	return &cobra.Command{
		Use:   "check-schema",
		Short: "Compare the live store with the documented schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(c.cfg.Verbose)
			st, err := openStore(cmd.Context(), log, c.cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := checkSchema(cmd.Context(), log, st, true); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ok")
			return nil
		},
	}, nil
}
