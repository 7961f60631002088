package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/zhubert/plural-gateway/cli"
	"github.com/zhubert/plural-gateway/config"
	"github.com/zhubert/plural-gateway/git"
	"github.com/zhubert/plural-gateway/logger"
	"github.com/zhubert/plural-gateway/metrics"
	"github.com/zhubert/plural-gateway/server"
	"github.com/zhubert/plural-gateway/store"
)

var (
	serveAddr        string
	serveSkipPrereqs bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(logger.StderrPath)
		if err != nil {
			return err
		}
		defer logger.Close()

		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveSkipPrereqs, "skip-prereqs", false, "start even when required CLI tools are missing")
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("main")

	if !serveSkipPrereqs {
		results := cli.NewChecker().CheckAll(ctx, cli.DefaultPrerequisites(cfg.Agent.Binary))
		if err := cli.ValidateRequired(results); err != nil {
			return err
		}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNewMetrics(reg)

	gw, reposDir, err := newGateway(cfg, m)
	if err != nil {
		return err
	}
	repos := git.NewRepoService(reposDir)
	if err := repos.EnsureReposDir(); err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Gateway:  gw,
		Store:    st,
		Repos:    repos,
		Metrics:  m,
		Gatherer: reg,
	}, server.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Debug:       cfg.Server.Debug,
	})

	log.Info("gateway starting",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Driver,
		"reposDir", reposDir,
		"config", cfg.FilePath())
	if err := srv.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout.Duration); err != nil {
		return err
	}
	log.Info("gateway stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		st, err := store.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(), nil
	}
}
