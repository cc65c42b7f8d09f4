package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/sportsql/pkg/logger"
)

type RefreshCmd struct {
	cfg *config

	player int
}

func NewRefreshCmd(cfg *config) *RefreshCmd {
	return &RefreshCmd{cfg: cfg}
}

func (c *RefreshCmd) Command() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Reload the store from the upstream feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			log := logger.New(c.cfg.Verbose)

			a, err := newDataApp(ctx, log, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if c.player > 0 {
				return a.refresh.RefreshPlayer(ctx, c.player)
			}
			return a.refresh.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&c.player, "player", 0, "reload only this player's history")
	return cmd, nil
}
