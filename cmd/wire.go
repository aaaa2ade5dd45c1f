package cmd

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/config"
	"github.com/seckatie/linkshelf/internal/core/assets"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/core/enrich"
	"github.com/seckatie/linkshelf/internal/core/linkedin"
	"github.com/seckatie/linkshelf/internal/core/screenshot"
)

// backfillDelay gives the server a moment to start before old bookmarks are queued.
const backfillDelay = 2 * time.Second

type app struct {
	cfg          *config.Config
	db           *db.DB
	assets       *assets.Store
	sessions     *linkedin.Manager
	orchestrator *enrich.Orchestrator
}

// loadConfig reads the configuration for cmd and installs the global logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// wireApp opens the database and asset store and builds the enrichment
// pipeline on top of them.
func wireApp(cfg *config.Config) (*app, error) {
	database, err := initDB(cfg.DB)
	if err != nil {
		return nil, err
	}

	store, err := assets.NewStore(cfg.DataDir)
	if err != nil {
		_ = database.Close()
		return nil, eris.Wrap(err, "open asset store")
	}

	log := zap.L()
	sessions := linkedin.NewManager(cfg.Credentials(), &linkedin.BrowserAuthenticator{
		Browser: cfg.BrowserOptions(),
		Timeout: cfg.LinkedIn.LoginTimeout,
		Log:     log,
	}, linkedin.ManagerOptions{
		TTL: cfg.LinkedIn.SessionTTL,
		Log: log,
	})

	orchestrator := enrich.New(enrich.Deps{
		Capturer: screenshot.NewCapturer(cfg.ScreenshotOptions(), log),
		Scraper:  linkedin.NewScraper(cfg.ScraperOptions(), store, log),
		Sessions: sessions,
		Store:    database,
		Assets:   store,
	}, enrich.Options{
		Workers:   cfg.Enrich.Workers,
		QueueSize: cfg.Enrich.QueueSize,
		Log:       log,
	})

	return &app{
		cfg:          cfg,
		db:           database,
		assets:       store,
		sessions:     sessions,
		orchestrator: orchestrator,
	}, nil
}

// close drains the orchestrator before the database goes away.
func (a *app) close(ctx context.Context) {
	if err := a.orchestrator.Close(ctx); err != nil {
		zap.L().Warn("enrichment shutdown incomplete", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		zap.L().Warn("failed to close database", zap.Error(err))
	}
}

func initDB(path string) (*db.DB, error) {
	database, err := db.NewSQLiteDB(path)
	if err != nil {
		return nil, eris.Wrap(err, "create database")
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, eris.Wrap(err, "migrate database")
	}
	zap.L().Info("database migrated successfully", zap.String("path", path))
	return database, nil
}

// enqueuer is the part of the orchestrator the event listeners need.
type enqueuer interface {
	Enqueue(b db.Bookmark) bool
}

// registerListeners queues new bookmarks for enrichment and removes the
// assets of deleted ones. Neither outcome is reported back to the caller
// that changed the bookmark.
func registerListeners(database *db.DB, queue enqueuer, store *assets.Store) {
	database.RegisterEventListener(db.OnBookmarkCreatedEvent, func(event db.Event) error {
		ev := event.(db.BookmarkCreatedEvent)
		zap.L().Info("bookmark created, queuing for enrichment",
			zap.Int64("bookmark_id", ev.Bookmark.ID),
			zap.String("url", ev.Bookmark.URL),
		)
		queue.Enqueue(ev.Bookmark)
		return nil
	})

	database.RegisterEventListener(db.OnBookmarkDeletedEvent, func(event db.Event) error {
		ev := event.(db.BookmarkDeletedEvent)
		if err := store.DeleteAll(context.Background(), ev.Bookmark.ID); err != nil {
			return eris.Wrapf(err, "remove assets of bookmark %d", ev.Bookmark.ID)
		}
		return nil
	})

	database.RegisterEventListener(db.OnEnrichmentSavedEvent, func(event db.Event) error {
		ev := event.(db.EnrichmentSavedEvent)
		zap.L().Debug("enrichment saved",
			zap.Int64("bookmark_id", ev.BookmarkID),
			zap.Bool("screenshot", ev.Screenshot),
			zap.Bool("linkedin", ev.LinkedIn),
		)
		return nil
	})
}

// backfill queues bookmarks whose enrichment never completed, for instance
// because the process stopped mid-run. It returns the number queued.
func backfill(ctx context.Context, database *db.DB, queue enqueuer, delay time.Duration) int {
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return 0
	}

	log := zap.L()
	log.Info("checking for unenriched bookmarks on startup")
	bookmarks, err := database.ListUnenriched(0)
	if err != nil {
		log.Error("failed to list unenriched bookmarks", zap.Error(err))
		return 0
	}
	if len(bookmarks) == 0 {
		log.Info("no bookmarks need enrichment")
		return 0
	}

	queued := 0
	for _, b := range bookmarks {
		if queue.Enqueue(b) {
			queued++
		}
	}
	log.Info("queued unenriched bookmarks",
		zap.Int("found", len(bookmarks)),
		zap.Int("queued", queued),
	)
	return queued
}
