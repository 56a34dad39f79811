package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/app"
	"github.com/JakeFAU/profile-contact-crawler/internal/config"
)

// newApp is the application factory. It is a variable so tests can inject
// fake capabilities.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

type crawlFlags struct {
	profiles       []string
	maxConcurrency int
	listenAddr     string
}

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the configured profiles",
		Long: `Renders every profile URL with at most max_concurrency pages in flight
and writes one record per profile to the configured outputs. Profiles come
from the config file, CRAWLER_PROFILES, or repeated --profile flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, flags)
		},
	}
	cmd.Flags().StringArrayVar(&flags.profiles, "profile", nil, "profile URL to crawl (repeatable, replaces configured profiles)")
	cmd.Flags().IntVar(&flags.maxConcurrency, "max-concurrency", 0, "maximum profiles in flight (overrides config)")
	cmd.Flags().StringVar(&flags.listenAddr, "listen", "", "status server address (overrides server.listen_addr)")
	return cmd
}

func runCrawl(cmd *cobra.Command, flags crawlFlags) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	cfg := applyFlags(cmd, rt.cfg, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := rt.logger

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("app init failed: %w", err)
	}
	defer a.Close()

	summary, err := a.Run(cmd.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawler: %w", err)
	}
	logger.Info("crawl finished",
		zap.String("run_id", summary.RunID),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
		zap.Bool("interrupted", err != nil),
	)
	return nil
}

// applyFlags layers explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg config.Config, flags crawlFlags) config.Config {
	if cmd.Flags().Changed("profile") {
		cfg.Profiles = cfg.Profiles[:0:0]
		for _, p := range flags.profiles {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Profiles = append(cfg.Profiles, p)
			}
		}
	}
	if cmd.Flags().Changed("max-concurrency") {
		cfg.MaxConcurrency = flags.maxConcurrency
		if cfg.MaxConcurrency == 0 {
			cfg.MaxConcurrency = config.DefaultMaxConcurrency
		}
	}
	if cmd.Flags().Changed("listen") {
		cfg.Server.ListenAddr = flags.listenAddr
	}
	return cfg
}
