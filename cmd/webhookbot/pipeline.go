package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/efreitasn/webhookbot/internal/config"
	"github.com/efreitasn/webhookbot/internal/exchange"
	"github.com/efreitasn/webhookbot/internal/store"
)

func newSubmitter(cfg *config.Config, logger *logrus.Logger) (*exchange.Submitter, error) {
	scheme, err := exchange.SchemeByName(cfg.SignScheme)
	if err != nil {
		return nil, err
	}
	return exchange.NewSubmitter(cfg.Exchange(), cfg.Credentials, exchange.WithScheme(scheme), exchange.WithLogger(logger))
}

// ledgerHandle is an opened ledger plus its lifecycle hooks.
type ledgerHandle struct {
	ledger store.Ledger
	start  func(ctx context.Context)
	close  func()
}

// openLedger builds the configured ledger backend. The redis backend is
// pinged so that a bad address fails at startup.
func openLedger(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ledgerHandle, error) {
	switch cfg.LedgerBackend {
	case config.LedgerRedis:
		l, err := store.NewRedisLedger(store.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Window:    cfg.IdempotencyWindow,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := l.Ping(pingCtx); err != nil {
			l.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return &ledgerHandle{
			ledger: l,
			start:  func(context.Context) {},
			close: func() {
				if err := l.Close(); err != nil {
					logger.WithError(err).Warn("failed to close redis ledger")
				}
			},
		}, nil

	default:
		l := store.NewMemoryLedger(cfg.IdempotencyWindow, cfg.LedgerCapacity, store.WithMemoryLogger(logger))
		sweeper := store.NewSweeper(cfg.LedgerSweepInterval, l, logger)
		return &ledgerHandle{
			ledger: l,
			start:  sweeper.Start,
			close:  func() {},
		}, nil
	}
}
