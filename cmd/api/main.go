package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/hit-counter/internal/api/http"
	"github.com/spec-kit/hit-counter/internal/app"
	"github.com/spec-kit/hit-counter/internal/config"
	"github.com/spec-kit/hit-counter/internal/observability"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		log.Fatalf("hit-counter: %v", err)
	}
}

// App describes the command line. Flags override the environment.
func App() *cli.App {
	return &cli.App{
		Name:  "hit-counter",
		Usage: "Count visits per target, backed by Postgres",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-url",
				Aliases: []string{"d"},
				Usage:   "Postgres connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to bind",
			},
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Create the hits table on startup",
				Value: true,
			},
		},
		Action: run,
	}
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("db-url") {
		cfg.Postgres.DSN = c.String("db-url")
	}
	if c.IsSet("host") {
		cfg.App.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.App.Port = c.String("port")
	}
	if c.IsSet("log-level") {
		cfg.Logger.Level = c.String("log-level")
	}
	if c.IsSet("migrate") {
		cfg.Postgres.RunMigrations = c.Bool("migrate")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(c, cfg)

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return err
	}
	defer state.Close()

	server := httptransport.NewApp(state)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := server.Listen(cfg.App.Addr()); err != nil {
			return fmt.Errorf("fiber listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return server.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
