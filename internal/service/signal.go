package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/efreitasn/webhookbot/internal/clock"
	"github.com/efreitasn/webhookbot/internal/domain"
	"github.com/efreitasn/webhookbot/internal/store"
)

// OrderSubmitter sends one logical order to the exchange.
type OrderSubmitter interface {
	Submit(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error)
}

// Outcome is what happened to one inbound signal.
type Outcome struct {
	Intent    domain.OrderIntent
	Result    domain.OrderResult
	Duplicate bool
}

// SignalService turns inbound alerts into at most one exchange order each.
type SignalService struct {
	normalizer Normalizer
	ledger     store.Ledger
	submitter  OrderSubmitter
	clock      clock.Clock
	logger     *logrus.Entry
}

// NewSignalService creates a new SignalService with the given dependencies.
func NewSignalService(
	normalizer Normalizer,
	ledger store.Ledger,
	submitter OrderSubmitter,
	clk clock.Clock,
	logger *logrus.Logger,
) *SignalService {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SignalService{
		normalizer: normalizer,
		ledger:     ledger,
		submitter:  submitter,
		clock:      clk,
		logger:     logger.WithField("component", "signal"),
	}
}

// Handle normalizes raw, reserves its fingerprint and submits the order.
//
// A redelivered signal inside the idempotency window returns an Outcome with
// Duplicate set and domain.ErrDuplicateSignal; nothing is sent.
// Submission errors are returned alongside the Outcome so callers can still
// report the OrderResult.
func (s *SignalService) Handle(ctx context.Context, raw map[string]any) (Outcome, error) {
	intent, err := s.normalizer.Normalize(raw)
	if err != nil {
		return Outcome{}, err
	}

	fp := intent.Fingerprint()
	log := s.logger.WithField("signal", fp.Key())

	token, ok, err := s.ledger.Reserve(ctx, fp, s.clock.Now())
	if err != nil {
		return Outcome{Intent: intent}, fmt.Errorf("reserve signal: %w", err)
	}
	if !ok {
		log.Info("duplicate signal ignored")
		return Outcome{Intent: intent, Duplicate: true}, domain.ErrDuplicateSignal
	}

	res, err := s.submitter.Submit(ctx, intent)
	out := Outcome{Intent: intent, Result: res}
	if err != nil {
		if releasable(err) {
			// The request context may already be done; release regardless.
			if rerr := s.ledger.Release(context.WithoutCancel(ctx), fp, token); rerr != nil {
				log.WithError(rerr).Warn("failed to release reservation")
			}
		}
		log.WithFields(logrus.Fields{
			"status":   res.Status,
			"attempts": res.Attempts,
		}).WithError(err).Warn("order not placed")
		return out, err
	}

	log.WithFields(logrus.Fields{
		"order_id": res.OrderID,
		"attempts": res.Attempts,
	}).Info("order placed")
	return out, nil
}

// releasable reports whether the exchange certainly holds no order for the
// failed submission, so a redelivery may try again.
func releasable(err error) bool {
	var rej *domain.ExchangeRejection
	if errors.As(err, &rej) {
		return !rej.EarlierAttemptSent
	}
	var terr *domain.TransportError
	if errors.As(err, &terr) {
		return !terr.Sent
	}
	return false
}
