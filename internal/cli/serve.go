package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/iocscore/internal/api"
	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/rules"
	"github.com/ppiankov/iocscore/internal/worker"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scoring HTTP API",
	Long: `Serve exposes scoring and explanation over HTTP:

  POST /api/score          score an indicator (?narrate=true adds a narrative)
  POST /api/explain        explain an indicator
  GET  /api/ioc/<value>    rescore a stored indicator with its provenance
  GET  /api/explain/<value>
  POST /api/import         import a CSV IOC list into the store
  GET  /healthz

When a rules file is configured and watch_rules is on, edits to the file are
applied without a restart. Invalid edits are rejected and the previous rules
stay active.

Example:
  iocscore serve --listen :8080 --rules rules.yaml --model model.json`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", model.DefaultConfig().Server.Listen, "listen address")
	_ = viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, cfg, bootOptions{withStore: true, withNarrator: true, withMetrics: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	server := api.NewServer(api.Options{
		Engine: a.engine,
		Store:  a.store,
		Importer: worker.NewImporter(a.store, a.engine, worker.Options{
			Workers:           cfg.Concurrency.Workers,
			RequestsPerSecond: cfg.RateLimiting.RequestsPerSecond,
			Burst:             cfg.RateLimiting.BurstSize,
			Metrics:           a.metrics,
			Logger:            a.log,
		}),
		Narrator:     a.narrator,
		Logger:       a.log,
		Version:      Version,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	a.log.Info().
		Str("version", Version).
		Str("model", modelLabel(a.engine.ModelVersion())).
		Str("rules", a.rules.Current().Label()).
		Str("store", storeLabel(cfg.Store.Driver, "")).
		Str("narrator", a.narrator.ProviderName()).
		Msg("starting iocscore")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Listen(cfg.Server.Listen); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.RulesFile != "" && cfg.WatchRules {
		w := rules.NewWatcher(cfg.RulesFile, a.rules, a.log)
		w.OnReload(func(ok bool) { a.metrics.RulesReloaded(gctx, ok) })
		g.Go(func() error { return w.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info().Msg("iocscore stopped")
	return nil
}
