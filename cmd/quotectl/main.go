// Command quotectl runs the broker's pipeline from the shell: classify a
// ticker, fetch candles or a CAGR through the shared cache, run the repair
// sweep or warm a watch list.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"quotebroker/internal/app"
	"quotebroker/internal/config"
	"quotebroker/internal/growth"
	"quotebroker/internal/logger"
	"quotebroker/internal/quotes"
	"quotebroker/internal/scheduler"
)

type options struct {
	configPath string
	verbose    bool
	interval   string
	userKey    string
	force      bool
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "quotectl",
		Short:        "Query and maintain the quote broker cache",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml or json)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		classifyCmd(opts),
		candlesCmd(opts),
		cagrCmd(opts),
		repairCmd(opts),
		warmCmd(opts),
	)
	return root
}

func openApp(ctx context.Context, opts *options) (*app.App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.verbose {
		if err := logger.GetLogger().Configure(cfg.Logging.Level, "text", "stderr", 0); err != nil {
			return nil, err
		}
	} else {
		logger.GetLogger().Discard()
	}
	return app.New(ctx, cfg)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func classifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify SYMBOL",
		Short: "Show the asset class and vendor symbol of a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			c := a.Quotes.Classify(cmd.Context(), args[0])
			return printJSON(cmd, map[string]any{
				"raw":           c.Raw,
				"class":         c.Class,
				"base":          c.Base,
				"exchange":      c.Exchange,
				"quote":         c.Quote,
				"vendor_symbol": c.VendorSymbol,
				"cache_key":     c.CacheKey(),
			})
		},
	}
}

func candlesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candles SYMBOL",
		Short: "Print the candle series of a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Quotes.Candles(cmd.Context(), quotes.Request{
				Symbol:   args[0],
				Interval: opts.interval,
				UserKey:  opts.userKey,
				Force:    opts.force,
			})
			if err != nil {
				return err
			}
			if res.NoData != "" {
				return fmt.Errorf("no data for %s: %s", res.Symbol.VendorSymbol, res.NoData)
			}
			return printJSON(cmd, res.Candles)
		},
	}
	cmd.Flags().StringVarP(&opts.interval, "interval", "i", quotes.DefaultInterval, "bar interval (1h, 1d, 1w, ...)")
	cmd.Flags().StringVarP(&opts.userKey, "user", "u", "", "cache partition key")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "refetch even when the cache is fresh")
	return cmd
}

func cagrCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cagr SYMBOL",
		Short: "Print the estimated annual growth rate of a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Growth.CAGR(cmd.Context(), growth.Request{Symbol: args[0], Interval: opts.interval, UserKey: opts.userKey})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"symbol": res.Key.Symbol, "cagr": res.CAGR, "cached": res.Cached})
		},
	}
	cmd.Flags().StringVarP(&opts.interval, "interval", "i", quotes.DefaultInterval, "bar interval")
	cmd.Flags().StringVarP(&opts.userKey, "user", "u", "", "cache partition key")
	return cmd
}

func repairCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Re-sanitize every cached candle series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Quotes.RepairAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{
				"scanned":  report.Scanned,
				"repaired": report.Repaired,
				"skipped":  report.Skipped,
			})
		},
	}
}

func warmCmd(opts *options) *cobra.Command {
	var (
		intervals   []string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "warm [SYMBOL...]",
		Short: "Refresh the shared cache for a watch list",
		Long:  "Refresh the shared cache for the given symbols, or for schedule.warmup_symbols when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.Config.Schedule
			if len(args) > 0 {
				s.WarmupSymbols = args
			}
			if len(intervals) > 0 {
				s.WarmupIntervals = intervals
			}
			if concurrency > 0 {
				s.WarmupConcurrency = concurrency
			}
			if len(s.WarmupSymbols) == 0 {
				return errors.New("no symbols to warm")
			}

			report := scheduler.New(cmd.Context(), scheduler.Config{
				WarmupSymbols:     s.WarmupSymbols,
				WarmupIntervals:   s.WarmupIntervals,
				WarmupConcurrency: s.WarmupConcurrency,
			}, nil, a.Quotes).Warm(cmd.Context())
			return printJSON(cmd, map[string]int{
				"refreshed": report.Refreshed,
				"empty":     report.Empty,
				"failed":    report.Failed,
			})
		},
	}
	cmd.Flags().StringSliceVarP(&intervals, "interval", "i", nil, "intervals to refresh")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "parallel fetches")
	return cmd
}
