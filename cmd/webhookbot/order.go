package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/efreitasn/webhookbot/internal/domain"
	"github.com/efreitasn/webhookbot/internal/exchange"
	"github.com/efreitasn/webhookbot/internal/service"
)

func orderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "symbol", Required: true, Usage: "instrument, e.g. BTCUSDT"},
		&cli.StringFlag{Name: "side", Required: true, Usage: "BUY or SELL"},
		&cli.StringFlag{Name: "qty", Required: true, Usage: "base asset quantity"},
	}
}

// intentFromFlags runs the CLI flags through the same normalizer as webhooks.
func intentFromFlags(c *cli.Context, maxDecimals int) (domain.OrderIntent, error) {
	return service.NewNormalizer(maxDecimals).Normalize(map[string]any{
		"symbol": c.String("symbol"),
		"side":   c.String("side"),
		"qty":    c.String("qty"),
	})
}

func orderCommand() *cli.Command {
	return &cli.Command{
		Name:  "order",
		Usage: "normalize, sign and submit a single market order",
		Flags: orderFlags(),
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			intent, err := intentFromFlags(c, cfg.QtyMaxDecimals)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			sub, err := newSubmitter(cfg, logger)
			if err != nil {
				return err
			}

			res, err := sub.Submit(c.Context, intent)
			printResult(c.App.Writer, intent, res)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func signCommand() *cli.Command {
	flags := append(orderFlags(), &cli.Int64Flag{
		Name:  "timestamp",
		Usage: "signing timestamp in unix milliseconds (default now)",
	})
	return &cli.Command{
		Name:  "sign",
		Usage: "print the signed request for an order without sending it",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			intent, err := intentFromFlags(c, cfg.QtyMaxDecimals)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			sub, err := newSubmitter(cfg, logger)
			if err != nil {
				return err
			}

			var req exchange.SignedRequest
			if ms := c.Int64("timestamp"); ms > 0 {
				req, err = sub.SignAt(intent, time.UnixMilli(ms))
			} else {
				req, err = sub.Sign(intent)
			}
			if err != nil {
				return err
			}
			printSigned(c.App.Writer, sub.Scheme().Name(), req)
			return nil
		},
	}
}

func printResult(w io.Writer, intent domain.OrderIntent, res domain.OrderResult) {
	fmt.Fprintf(w, "order:    %s\n", intent)
	fmt.Fprintf(w, "status:   %s\n", res.Status)
	if code, ok := res.Code(); ok {
		fmt.Fprintf(w, "code:     %d\n", code)
	}
	fmt.Fprintf(w, "message:  %s\n", res.Message)
	if res.OrderID != "" {
		fmt.Fprintf(w, "order_id: %s\n", res.OrderID)
	}
	fmt.Fprintf(w, "attempts: %d\n", res.Attempts)
}

func printSigned(w io.Writer, scheme string, req exchange.SignedRequest) {
	fmt.Fprintf(w, "scheme:    %s\n", scheme)
	fmt.Fprintf(w, "path:      POST %s\n", req.Path)
	fmt.Fprintf(w, "timestamp: %d\n", req.TimestampMillis())
	fmt.Fprintf(w, "body:      %s\n", req.Body)
	fmt.Fprintf(w, "signature: %s\n", req.Signature)

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "header:    %s: %s\n", name, req.Header.Get(name))
	}
}
