package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/efreitasn/webhookbot/internal/clock"
	"github.com/efreitasn/webhookbot/internal/config"
	"github.com/efreitasn/webhookbot/internal/handler"
	"github.com/efreitasn/webhookbot/internal/logging"
	"github.com/efreitasn/webhookbot/internal/service"
)

// Version is the build version, set with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "webhookbot",
		Usage:   "relay trading-signal webhooks to signed exchange market orders",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "optional YAML config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "env file to load before reading the environment (default .env if present)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "override LOG_LEVEL (debug, info, warn, error)",
			},
		},
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the webhook HTTP server",
				Action: runServe,
			},
			orderCommand(),
			signCommand(),
			{
				Name:  "healthcheck",
				Usage: "GET localhost:PORT/healthz and exit 0 on 200",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Value:   8080,
						EnvVars: []string{"PORT"},
					},
				},
				Action: runHealthcheck,
			},
		},
	}
}

// setup loads the .env file and configuration and builds the logger.
func setup(c *cli.Context) (*config.Config, *logrus.Logger, error) {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.AddHook(logging.NewRedactHook(cfg.Credentials.Secret))
	return cfg, logger, nil
}

func runServe(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	submitter, err := newSubmitter(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	ledger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ledger.close()

	signalSvc := service.NewSignalService(
		service.NewNormalizer(cfg.QtyMaxDecimals),
		ledger.ledger,
		submitter,
		clock.System{},
		logger,
	)
	router := handler.NewRouter(signalSvc, logger)

	// Start ledger sweeping with cancellable context.
	ledger.start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":        addr,
			"sign_scheme": submitter.Scheme().Name(),
			"ledger":      cfg.LedgerBackend,
			"base_url":    cfg.BaseURL,
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for SIGINT/SIGTERM or a listener failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown: stop HTTP server, then cancel context (stops the sweeper).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown error")
	}
	cancel()

	logger.Info("server stopped")
	return nil
}

func runHealthcheck(c *cli.Context) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/healthz", c.Int("port")))
	if err != nil {
		return cli.Exit(fmt.Sprintf("unhealthy: %v", err), 1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return cli.Exit(fmt.Sprintf("unhealthy: status %d", resp.StatusCode), 1)
	}
	return nil
}
