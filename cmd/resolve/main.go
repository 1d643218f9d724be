// Command resolve prints the product resolved from a single URL as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/product-resolver/internal/browser"
	"github.com/maltedev/product-resolver/internal/config"
	"github.com/maltedev/product-resolver/internal/fetch"
	"github.com/maltedev/product-resolver/internal/resolver"
)

type options struct {
	timeout  time.Duration
	browser  bool
	pretty   bool
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve a product page URL into title, image, price and currency",
		Long: `Resolve fetches a product page once and prints the resolved product as JSON.

Examples:
  resolve https://www.asos.com/prd/123456
  resolve https://www.nike.com/t/air-max --pretty
  resolve https://www.amazon.co.uk/dp/B000000000 --browser --timeout 30s`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], opts)
		},
	}

	cmd.Flags().DurationVar(&opts.timeout, "timeout", config.DefaultResolveTimeoutMS*time.Millisecond, "Fetch timeout")
	cmd.Flags().BoolVar(&opts.browser, "browser", false, "Render the page in headless Chromium instead of a plain GET")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Indent the JSON output")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")

	return cmd
}

func runResolve(cmd *cobra.Command, rawURL string, opts *options) error {
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: config.ParseLevel(opts.logLevel),
	}))

	var fetcher fetch.Fetcher = fetch.New(&fetch.Options{Timeout: opts.timeout})
	if opts.browser {
		bopts := browser.DefaultOptions()
		bopts.Timeout = opts.timeout
		b, err := browser.New(bopts, logger)
		if err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
		defer b.Close()
		fetcher = b
	}

	engine := resolver.New(fetcher, resolver.WithLogger(logger))

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout+5*time.Second)
	defer cancel()

	product, err := engine.Resolve(ctx, rawURL)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(product)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
