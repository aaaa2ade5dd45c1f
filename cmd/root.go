/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/web"
)

// shutdownGrace bounds how long in-flight enrichment may run after a signal.
const shutdownGrace = 30 * time.Second

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linkshelf",
	Short: "Bookmark server with screenshot and LinkedIn post enrichment",
	Long: `linkshelf stores bookmarks and serves them over a JSON API.

Every new bookmark is enriched in the background: a screenshot of the page is
captured and, when the URL is a LinkedIn post, the post's author, text and
images are scraped using the LinkedIn credentials from the configuration.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := wireApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		a.close(closeCtx)
	}()

	registerListeners(a.db, a.orchestrator, a.assets)
	go backfill(ctx, a.db, a.orchestrator, backfillDelay)

	if _, err := cfg.Credentials().Credentials(ctx); err != nil {
		zap.L().Warn("LinkedIn credentials not configured, LinkedIn posts will not be scraped")
	}

	server := web.NewServer(a.db, a.assets, a.orchestrator, zap.L())
	return web.StartServer(ctx, cfg.Addr(), server.Router())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a linkshelf.yaml config file")
	rootCmd.PersistentFlags().StringP("db", "d", "linkshelf.db", "Path to the SQLite database file")
	rootCmd.PersistentFlags().String("data-dir", "data", "Directory for screenshots and LinkedIn images")
	rootCmd.PersistentFlags().String("chrome-path", "", "Path to Chrome/Chromium executable")
	rootCmd.PersistentFlags().Bool("headless", true, "Run Chrome without a visible window")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, console)")

	rootCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.Flags().String("host", "localhost", "Host to listen on")
	rootCmd.Flags().IntP("workers", "w", 2, "Number of enrichment workers to run")
}
