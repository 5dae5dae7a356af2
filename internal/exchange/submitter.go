// Package exchange signs market orders and submits them to the exchange REST API.
package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/efreitasn/webhookbot/internal/clock"
	"github.com/efreitasn/webhookbot/internal/domain"
)

// maxResponseBytes caps how much of an exchange response is read.
const maxResponseBytes = 1 << 20

// Config holds submission tuning.
type Config struct {
	BaseURL        string
	RecvWindow     time.Duration
	RequestTimeout time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RateLimit      rate.Limit
	RateBurst      int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.bybit.com",
		RecvWindow:     DefaultRecvWindow,
		RequestTimeout: 5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		RateLimit:      rate.Limit(10),
		RateBurst:      5,
	}
}

// attemptTimeout bounds a single HTTP attempt by the recv window: a request
// still in flight after that would be rejected as stale anyway.
func (c Config) attemptTimeout() time.Duration {
	if c.RequestTimeout <= 0 || c.RequestTimeout > c.RecvWindow {
		return c.RecvWindow
	}
	return c.RequestTimeout
}

// MaxSubmitDuration is the longest Submit can run, not counting rate limiter
// waits: every attempt runs to its timeout and every backoff is drawn at the
// top of its randomized range. A server write deadline must exceed it or a
// late success is never reported to the caller.
func (c Config) MaxSubmitDuration() time.Duration {
	if c.RecvWindow <= 0 {
		c.RecvWindow = DefaultRecvWindow
	}
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	wait := c.MaxBackoff
	if c.InitialBackoff > wait {
		wait = c.InitialBackoff
	}
	wait = time.Duration(float64(wait) * (1 + backoff.DefaultRandomizationFactor))
	return time.Duration(attempts)*c.attemptTimeout() + time.Duration(attempts-1)*wait
}

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Submitter turns intents into signed requests and sends them.
// It is safe for concurrent use.
type Submitter struct {
	cfg     Config
	creds   domain.Credentials
	scheme  Scheme
	doer    Doer
	clock   clock.Clock
	limiter *rate.Limiter
	logger  *logrus.Entry
}

// Option customizes a Submitter.
type Option func(*Submitter)

// WithDoer replaces the HTTP transport.
func WithDoer(d Doer) Option {
	return func(s *Submitter) { s.doer = d }
}

// WithClock replaces the clock used for signing timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Submitter) { s.clock = c }
}

// WithScheme selects the signing scheme. Defaults to V5Scheme.
func WithScheme(sc Scheme) Option {
	return func(s *Submitter) { s.scheme = sc }
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Submitter) { s.logger = l.WithField("component", "submitter") }
}

// NewSubmitter validates cfg and creds and builds a Submitter.
func NewSubmitter(cfg Config, creds domain.Credentials, opts ...Option) (*Submitter, error) {
	if _, err := domain.NewCredentials(creds.APIKey, creds.Secret); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("exchange base url is required")
	}
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = DefaultRecvWindow
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Inf
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	s := &Submitter{
		cfg:     cfg,
		creds:   creds,
		scheme:  V5Scheme{},
		clock:   clock.System{},
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:  logrus.StandardLogger().WithField("component", "submitter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.doer == nil {
		s.doer = &http.Client{Timeout: cfg.attemptTimeout()}
	}
	return s, nil
}

// Scheme returns the active signing scheme.
func (s *Submitter) Scheme() Scheme {
	return s.scheme
}

// Sign builds and signs a request for intent at the current clock time
// without sending it.
func (s *Submitter) Sign(intent domain.OrderIntent) (SignedRequest, error) {
	return s.SignAt(intent, s.clock.Now())
}

// SignAt is Sign with an explicit timestamp.
func (s *Submitter) SignAt(intent domain.OrderIntent, at time.Time) (SignedRequest, error) {
	return s.scheme.Sign(intent, s.creds, at, s.cfg.RecvWindow)
}

// Submit sends exactly one logical order for intent. Transport failures that
// happen before a response is received are retried with backoff; the signed
// request is reused while its timestamp is inside the recv window and rebuilt
// otherwise. Any received response is final.
//
// The returned result is always populated. The error is a
// *domain.ExchangeRejection for REJECTED and a *domain.TransportError for
// TRANSPORT_ERROR.
func (s *Submitter) Submit(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"symbol": intent.Symbol,
		"side":   intent.Side,
		"qty":    intent.Quantity,
		"scheme": s.scheme.Name(),
	})

	req, err := s.Sign(intent)
	if err != nil {
		terr := &domain.TransportError{Op: "sign order", Err: err}
		return transportResult(0), terr
	}

	var (
		attempts int
		sent     bool
		result   domain.OrderResult
		final    error
	)

	op := func() (struct{}, error) {
		attempts++
		if attempts > 1 && !req.Fresh(s.clock.Now()) {
			rebuilt, err := s.Sign(intent)
			if err != nil {
				return struct{}{}, backoff.Permanent(&domain.TransportError{Op: "sign order", Sent: sent, Err: err})
			}
			log.WithFields(logrus.Fields{
				"old_timestamp": req.TimestampMillis(),
				"new_timestamp": rebuilt.TimestampMillis(),
			}).Info("signed timestamp left recv window, rebuilding request")
			req = rebuilt
		}

		log.WithFields(logrus.Fields{
			"attempt":   attempts,
			"timestamp": req.TimestampMillis(),
			"signature": req.Signature,
		}).Debug("sending signed order request")

		sentBefore := sent
		status, body, err := s.send(ctx, req)
		if err != nil {
			var terr *domain.TransportError
			if errors.As(err, &terr) && terr.Sent {
				sent = true
			}
			if ctx.Err() != nil || !retryable(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		sent = true

		result, final = parseResponse(status, body)
		var rej *domain.ExchangeRejection
		if errors.As(final, &rej) {
			rej.EarlierAttemptSent = sentBefore
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.MaxInterval = s.cfg.MaxBackoff

	_, retryErr := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempts,
				"backoff": next,
			}).Warn("order request failed before a response, retrying")
		}),
	)

	if retryErr != nil {
		var terr *domain.TransportError
		if !errors.As(retryErr, &terr) {
			terr = &domain.TransportError{Op: "submit order", Sent: sent, Err: retryErr}
		}
		terr.Sent = terr.Sent || sent
		log.WithError(terr).WithField("attempts", attempts).Error("order submission failed")
		return transportResult(attempts), terr
	}

	result.Attempts = attempts
	switch result.Status {
	case domain.OrderStatusSuccess:
		log.WithFields(logrus.Fields{
			"order_id": result.OrderID,
			"attempts": attempts,
		}).Info("order accepted")
	case domain.OrderStatusRejected:
		code, _ := result.Code()
		log.WithFields(logrus.Fields{
			"ret_code": code,
			"ret_msg":  result.Message,
		}).Warn("order rejected by exchange")
	default:
		log.WithError(final).Error("exchange response could not be interpreted")
	}
	return result, final
}

// send performs one HTTP attempt and returns the status and raw body.
func (s *Submitter) send(ctx context.Context, req SignedRequest) (int, []byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, nil, &domain.TransportError{Op: "wait for rate limit", Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.attemptTimeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, s.cfg.BaseURL+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return 0, nil, &domain.TransportError{Op: "build request", Err: err}
	}
	httpReq.Header = req.Header.Clone()
	httpReq.Header.Set("User-Agent", "webhookbot/1.0")

	resp, err := s.doer.Do(httpReq)
	if err != nil {
		return 0, nil, &domain.TransportError{Op: "post order", Sent: !dialFailed(err), Err: errRetryable{err}}
	}
	defer resp.Body.Close()

	// Headers arrived, so the exchange has seen the order. A body read
	// failure is not retried.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &domain.TransportError{Op: "read response", Sent: true, Err: err}
	}
	return resp.StatusCode, body, nil
}

// dialFailed reports whether err happened while connecting, before any
// request bytes were written. Any other Do error may have reached the exchange.
func dialFailed(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// errRetryable marks failures that happened before any response was received.
type errRetryable struct {
	err error
}

func (e errRetryable) Error() string { return e.err.Error() }
func (e errRetryable) Unwrap() error { return e.err }

func retryable(err error) bool {
	var r errRetryable
	return errors.As(err, &r)
}

func transportResult(attempts int) domain.OrderResult {
	return domain.OrderResult{
		Status:   domain.OrderStatusTransportError,
		Message:  "exchange request failed",
		Attempts: attempts,
	}
}
