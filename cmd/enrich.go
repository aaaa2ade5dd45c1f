/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/

// The enrich command runs enrichment for existing bookmarks in the foreground.
//
// Features:
//   - Enrich a single bookmark by specifying its ID, even if it was enriched before.
//   - Enrich every bookmark that was never enriched, optionally limited.
//   - Bound each bookmark's run with a timeout.
//
// Example usage:
//
//	linkshelf enrich --id=123 --timeout=2m
//	linkshelf enrich --limit=10 --headless=false
package cmd

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/core/enrich"
)

// enrichCmd represents the enrich command
var enrichCmd = &cobra.Command{
	Use:          "enrich",
	Short:        "Capture screenshots and scrape LinkedIn posts for existing bookmarks",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnrich(cmd)
	},
}

// runner is the part of the orchestrator the enrich command drives.
type runner interface {
	Run(ctx context.Context, b db.Bookmark) enrich.Outcome
}

// runEnrich is the main function for the enrich command.
func runEnrich(cmd *cobra.Command) error {
	id, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return eris.Wrap(err, "read --id")
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return eris.Wrap(err, "read --limit")
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return eris.Wrap(err, "read --timeout")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := wireApp(cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	bookmarks, err := selectBookmarks(a.db, id, limit)
	if err != nil {
		return err
	}
	return enrichAll(cmd.Context(), a.orchestrator, bookmarks, timeout)
}

// selectBookmarks returns the bookmark with id, or up to limit unenriched
// bookmarks when id is zero.
func selectBookmarks(database *db.DB, id int64, limit int) ([]db.Bookmark, error) {
	if id > 0 {
		b, err := database.GetBookmark(id)
		if err != nil {
			return nil, err
		}
		return []db.Bookmark{b}, nil
	}
	return database.ListUnenriched(limit)
}

// enrichAll runs each bookmark in turn and fails if any result could not be
// written. Branch failures are part of a normal result and only get logged.
func enrichAll(ctx context.Context, r runner, bookmarks []db.Bookmark, timeout time.Duration) error {
	log := zap.L()
	if len(bookmarks) == 0 {
		log.Info("no bookmarks to enrich")
		return nil
	}

	log.Info("enriching bookmarks", zap.Int("count", len(bookmarks)))
	var failures int
	for _, b := range bookmarks {
		if err := ctx.Err(); err != nil {
			return err
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		out := r.Run(runCtx, b)
		cancel()

		fields := []zap.Field{
			zap.Int64("bookmark_id", b.ID),
			zap.String("url", b.URL),
			zap.String("run_id", out.RunID),
			zap.String("screenshot", string(out.Screenshot.Status)),
			zap.String("linkedin", string(out.LinkedIn.Status)),
		}
		if out.Err != nil {
			failures++
			log.Error("enrichment failed", append(fields, zap.Error(out.Err))...)
			continue
		}
		log.Info("bookmark enriched", fields...)
	}

	if failures > 0 {
		return eris.Errorf("enrichment finished with %d failure(s)", failures)
	}
	log.Info("enrichment finished successfully")
	return nil
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().Int64("id", 0, "Enrich a specific bookmark id")
	enrichCmd.Flags().Int("limit", 0, "Limit the number of bookmarks to enrich (0 = all unenriched)")
	enrichCmd.Flags().Duration("timeout", 2*time.Minute, "Per-bookmark enrichment timeout")
}
