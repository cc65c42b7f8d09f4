package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/sportsql/api"
	"github.com/malbeclabs/sportsql/api/metrics"
	"github.com/malbeclabs/sportsql/pkg/logger"
	"github.com/malbeclabs/sportsql/pkg/refresh"
	"github.com/malbeclabs/sportsql/pkg/store"
)

const shutdownTimeout = 30 * time.Second

type ServeCmd struct {
	cfg *config

	listenAddr      string
	metricsAddr     string
	adminToken      string
	refreshSchedule string
	allowedOrigins  string
	strictSchema    bool
	migrate         bool
}

func NewServeCmd(cfg *config) *ServeCmd {
	return &ServeCmd{cfg: cfg}
}

func (c *ServeCmd) Command() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return c.run(ctx, logger.New(c.cfg.Verbose))
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&c.listenAddr, "listen-addr", getenv("LISTEN_ADDR", defaultListenAddr), "HTTP API listen address [LISTEN_ADDR]")
	fs.StringVar(&c.metricsAddr, "metrics-addr", getenv("METRICS_ADDR", defaultMetricsAddr), "prometheus metrics listen address, empty to disable [METRICS_ADDR]")
	fs.StringVar(&c.adminToken, "admin-token", getenv("ADMIN_TOKEN", ""), "bearer token for the admin refresh endpoints, empty to disable them [ADMIN_TOKEN]")
	fs.StringVar(&c.refreshSchedule, "refresh-schedule", getenv("REFRESH_SCHEDULE", defaultRefreshSchedule), "cron schedule for full refreshes, empty to disable [REFRESH_SCHEDULE]")
	fs.StringVar(&c.allowedOrigins, "allowed-origins", getenv("ALLOWED_ORIGINS", "http://localhost:5173"), "comma-separated CORS origins [ALLOWED_ORIGINS]")
	fs.BoolVar(&c.strictSchema, "strict-schema", getenvBool("STRICT_SCHEMA", false), "refuse to start when the store schema drifts from the documented one [STRICT_SCHEMA]")
	fs.BoolVar(&c.migrate, "migrate", getenvBool("MIGRATE", false), "apply migrations before serving [MIGRATE]")
	return cmd, nil
}

func (c *ServeCmd) run(ctx context.Context, log *slog.Logger) error {
	a, err := newApp(ctx, log, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.migrate {
		if err := a.store.Migrate(ctx); err != nil {
			return err
		}
	}
	if err := checkSchema(ctx, log, a.store, c.strictSchema); err != nil {
		return err
	}

	opts := []api.Option{
		api.WithLogger(log),
		api.WithListenAddr(c.listenAddr),
		api.WithAnswerer(a.pipeline),
		api.WithStore(a.store),
		api.WithPlotsDir(c.cfg.PlotsDir),
		api.WithAllowedOrigins(splitCSV(c.allowedOrigins)),
	}
	if c.adminToken != "" {
		opts = append(opts, api.WithRefresher(a.refresh, c.adminToken))
	} else {
		log.Warn("serve: ADMIN_TOKEN not set, admin refresh endpoints disabled")
	}
	server, err := api.NewServer(opts...)
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Run)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if c.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		ms := &http.Server{Addr: c.metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Info("serve: prometheus metrics server listening", "address", c.metricsAddr)
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if c.refreshSchedule != "" {
		sched, err := refresh.NewScheduler(log, a.refresh, c.refreshSchedule)
		if err != nil {
			return err
		}
		g.Go(func() error {
			sched.Start(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("serve: stopped")
	return nil
}

// checkSchema logs drift between the live store and the documented schema.
// Drift is fatal only when strict is set.
func checkSchema(ctx context.Context, log *slog.Logger, st *store.Store, strict bool) error {
	err := st.CheckSchema(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrSchemaDrift):
		log.Error("schema: store drifts from the documented schema", "error", err)
		if strict {
			return err
		}
		return nil
	default:
		return fmt.Errorf("failed to check schema: %w", err)
	}
}
