// Package enrich runs the background enrichment of new bookmarks: a
// screenshot for every URL and, for LinkedIn posts, a scrape of the post.
package enrich

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seckatie/linkshelf/internal/core/assets"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/core/linkedin"
)

// DefaultWorkers is the number of concurrent enrichment runs.
const DefaultWorkers = 2

var (
	// ErrAlreadyRunning is returned by Run when the bookmark is queued or
	// being enriched already.
	ErrAlreadyRunning = eris.New("enrichment already running for bookmark")
	// ErrClosed is returned by Run after Close.
	ErrClosed = eris.New("orchestrator closed")
)

// Capturer renders a URL to an image.
type Capturer interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

// Scraper extracts a LinkedIn post, storing its images as assets.
type Scraper interface {
	Scrape(ctx context.Context, bookmarkID int64, url string, session *linkedin.Session) (*db.LinkedInPost, error)
}

// SessionProvider hands out the shared LinkedIn session.
type SessionProvider interface {
	Session(ctx context.Context) (*linkedin.Session, error)
	Invalidate(s *linkedin.Session)
}

// Store persists enrichment results.
type Store interface {
	UpdateEnrichment(id int64, screenshot bool, post *db.LinkedInPost) error
}

// Assets stores and removes bookmark assets.
type Assets interface {
	Put(ctx context.Context, id int64, kind assets.Kind, filename string, data []byte) error
	Delete(ctx context.Context, id int64, kind assets.Kind, filename string) error
	DeleteAll(ctx context.Context, id int64) error
}

// Deps are the collaborators of an Orchestrator. Scraper and Sessions may be
// nil, which disables LinkedIn enrichment.
type Deps struct {
	Capturer Capturer
	Scraper  Scraper
	Sessions SessionProvider
	Store    Store
	Assets   Assets
}

// Options configures the worker pool.
type Options struct {
	// Workers is the number of concurrent runs. Zero means DefaultWorkers.
	Workers int
	// QueueSize is the number of bookmarks that may wait for a worker.
	// Zero means Workers*10.
	QueueSize int
	Log       *zap.Logger
}

// Orchestrator enriches bookmarks on a bounded pool of workers.
type Orchestrator struct {
	deps Deps
	log  *zap.Logger

	queue   chan db.Bookmark
	workers sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[int64]*progress
	closed   bool
	// pending counts queued bookmarks not yet finished; idle is signaled
	// on o.mu when it drops to zero.
	pending int
	idle    *sync.Cond
}

// New starts an Orchestrator with its workers running.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers * 10
	}
	if opts.Log == nil {
		opts.Log = zap.L()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		deps:     deps,
		log:      opts.Log.Named("enrich"),
		queue:    make(chan db.Bookmark, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[int64]*progress),
	}
	o.idle = sync.NewCond(&o.mu)

	for i := 0; i < opts.Workers; i++ {
		o.workers.Add(1)
		go o.worker(i)
	}
	o.log.Info("enrichment workers started",
		zap.Int("workers", opts.Workers),
		zap.Int("queue_size", opts.QueueSize),
	)
	return o
}

func (o *Orchestrator) worker(id int) {
	defer o.workers.Done()
	log := o.log.With(zap.Int("worker", id))
	log.Debug("enrichment worker started")
	for b := range o.queue {
		if o.ctx.Err() != nil {
			// Shutdown gave up on the queue. enriched_at stays unset, so
			// the startup backfill picks the bookmark up again.
			log.Info("shutdown interrupted, bookmark left for backfill", zap.Int64("bookmark_id", b.ID))
			o.finishQueued(b.ID)
			continue
		}

		o.mu.Lock()
		p := o.inflight[b.ID]
		o.mu.Unlock()

		o.run(o.ctx, b, p)
		o.finishQueued(b.ID)
	}
	log.Debug("enrichment worker stopped")
}

// Enqueue schedules b for enrichment and returns immediately. It reports
// false when the bookmark was not queued: it is already queued or running,
// the queue is full, or the orchestrator is closed. Bookmarks dropped for a
// full queue keep enriched_at unset and are picked up by the startup backfill.
func (o *Orchestrator) Enqueue(b db.Bookmark) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	log := o.log.With(zap.Int64("bookmark_id", b.ID), zap.String("url", b.URL))
	if o.closed {
		log.Warn("orchestrator closed, bookmark not queued")
		return false
	}
	if _, ok := o.inflight[b.ID]; ok {
		log.Debug("bookmark already queued for enrichment")
		return false
	}

	select {
	case o.queue <- b:
		o.inflight[b.ID] = newProgress()
		o.pending++
		log.Debug("bookmark queued for enrichment")
		return true
	default:
		log.Warn("enrichment queue full, bookmark will be picked up later")
		return false
	}
}

// Run enriches b synchronously on the calling goroutine. It does not use a
// worker, but still refuses to run alongside another run for the same id.
func (o *Orchestrator) Run(ctx context.Context, b db.Bookmark) Outcome {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Outcome{BookmarkID: b.ID, Err: ErrClosed}
	}
	if _, ok := o.inflight[b.ID]; ok {
		o.mu.Unlock()
		return Outcome{BookmarkID: b.ID, Err: eris.Wrapf(ErrAlreadyRunning, "bookmark %d", b.ID)}
	}
	p := newProgress()
	o.inflight[b.ID] = p
	o.mu.Unlock()

	defer o.finish(b.ID)
	return o.run(ctx, b, p)
}

func (o *Orchestrator) finish(id int64) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) finishQueued(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, id)
	o.pending--
	if o.pending == 0 {
		o.idle.Broadcast()
	}
}

// State reports the phase of the run for id. The second value is false when
// no run is queued or active for id.
func (o *Orchestrator) State(id int64) (State, bool) {
	o.mu.Lock()
	p, ok := o.inflight[id]
	o.mu.Unlock()
	if !ok {
		return "", false
	}
	return p.state(), true
}

// Wait blocks until every queued bookmark has been processed. Bookmarks
// enqueued while Wait blocks are waited for as well.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.pending > 0 {
		o.idle.Wait()
	}
}

// Close stops accepting bookmarks and lets the workers drain the queue. If
// ctx ends first, in-flight runs are canceled and ctx's error is returned.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		o.log.Info("enrichment workers stopped")
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		o.log.Warn("enrichment shutdown interrupted, in-flight runs canceled")
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, b db.Bookmark, p *progress) Outcome {
	if p == nil {
		p = newProgress()
	}
	out := Outcome{RunID: uuid.NewString(), BookmarkID: b.ID}
	log := o.log.With(
		zap.String("run_id", out.RunID),
		zap.Int64("bookmark_id", b.ID),
		zap.String("url", b.URL),
	)
	log.Info("enrichment started")
	p.start()

	var g errgroup.Group
	g.Go(func() error {
		out.Screenshot = o.captureScreenshot(ctx, b, log.With(zap.String("branch", "screenshot")))
		p.setScreenshot(StateDone)
		return nil
	})
	g.Go(func() error {
		out.Post, out.LinkedIn = o.scrapeLinkedIn(ctx, b, p, log.With(zap.String("branch", "linkedin")))
		p.setLinkedIn(StateDone)
		return nil
	})
	_ = g.Wait()

	p.setPhase(StateFinalizing)
	log.Debug("enrichment branches finished",
		zap.String("state", string(StateFinalizing)),
		zap.String("screenshot", string(out.Screenshot.Status)),
		zap.String("linkedin", string(out.LinkedIn.Status)),
	)

	screenshotOK := out.Screenshot.Status == StatusOK

	if err := ctx.Err(); err != nil {
		// enriched_at stays unset so the backfill retries the bookmark.
		if !b.Screenshot {
			o.discardScreenshot(ctx, b.ID, log)
		}
		out.Err = eris.Wrapf(err, "enrichment of bookmark %d canceled", b.ID)
		log.Warn("enrichment canceled, results not saved", zap.Error(err))
		p.setPhase(StateDone)
		return out
	}

	if !screenshotOK {
		// A previous run may have left a screenshot behind.
		o.discardScreenshot(ctx, b.ID, log)
	}

	err := o.deps.Store.UpdateEnrichment(b.ID, screenshotOK, out.Post)
	switch {
	case err == nil:
		out.Persisted = true
	case eris.Is(err, db.ErrBookmarkNotFound):
		log.Info("bookmark deleted during enrichment, discarding results")
		if o.deps.Assets != nil {
			// A delete that raced with this run may have missed assets
			// written after it.
			if err := o.deps.Assets.DeleteAll(context.WithoutCancel(ctx), b.ID); err != nil {
				log.Warn("failed to remove assets of deleted bookmark", zap.Error(err))
			}
		}
	default:
		out.Err = eris.Wrapf(err, "save enrichment for bookmark %d", b.ID)
		log.Error("failed to save enrichment", zap.Error(err))
		if screenshotOK && !b.Screenshot {
			o.discardScreenshot(ctx, b.ID, log)
		}
	}

	p.setPhase(StateDone)
	log.Info("enrichment finished",
		zap.String("state", string(StateDone)),
		zap.String("screenshot", string(out.Screenshot.Status)),
		zap.String("linkedin", string(out.LinkedIn.Status)),
		zap.Bool("persisted", out.Persisted),
	)
	return out
}

// discardScreenshot removes the stored screenshot of id, if any.
func (o *Orchestrator) discardScreenshot(ctx context.Context, id int64, log *zap.Logger) {
	if o.deps.Assets == nil {
		return
	}
	err := o.deps.Assets.Delete(context.WithoutCancel(ctx), id, assets.KindScreenshot, assets.ScreenshotFilename)
	if err != nil {
		log.Warn("failed to remove stale screenshot", zap.Error(err))
	}
}

func (o *Orchestrator) captureScreenshot(ctx context.Context, b db.Bookmark, log *zap.Logger) BranchResult {
	if o.deps.Capturer == nil || o.deps.Assets == nil {
		return skipped("screenshot capture disabled")
	}
	img, err := o.deps.Capturer.Capture(ctx, b.URL)
	if err != nil {
		log.Warn("screenshot failed", zap.Error(err))
		return failed(err.Error())
	}
	if err := o.deps.Assets.Put(ctx, b.ID, assets.KindScreenshot, assets.ScreenshotFilename, img); err != nil {
		log.Warn("failed to store screenshot", zap.Error(err))
		return failed(err.Error())
	}
	log.Debug("screenshot stored", zap.Int("bytes", len(img)))
	return ok()
}

func (o *Orchestrator) scrapeLinkedIn(ctx context.Context, b db.Bookmark, p *progress, log *zap.Logger) (*db.LinkedInPost, BranchResult) {
	if !linkedin.IsPostURL(b.URL) {
		return nil, skipped("not a linkedin post")
	}
	if o.deps.Scraper == nil || o.deps.Sessions == nil {
		return nil, skipped("linkedin scraping disabled")
	}
	p.setLinkedIn(StateScrapingLinkedIn)

	// One retry, only after the session was rejected.
	for attempt := 1; ; attempt++ {
		session, err := o.deps.Sessions.Session(ctx)
		if err != nil {
			if eris.Is(err, linkedin.ErrCredentialsMissing) {
				log.Debug("linkedin credentials not configured, skipping scrape")
				return nil, skipped("credentials missing")
			}
			log.Warn("linkedin session unavailable", zap.Int("attempt", attempt), zap.Error(err))
			return nil, failed(err.Error())
		}

		post, err := o.deps.Scraper.Scrape(ctx, b.ID, b.URL, session)
		if err == nil {
			log.Debug("linkedin post scraped", zap.Int("attempt", attempt), zap.Int("images", len(post.Images)))
			return post, ok()
		}
		if eris.Is(err, linkedin.ErrNotAuthenticated) && attempt == 1 {
			log.Info("linkedin session rejected, re-authenticating", zap.Error(err))
			o.deps.Sessions.Invalidate(session)
			continue
		}

		switch {
		case eris.Is(err, linkedin.ErrPostNotFound):
			log.Info("linkedin post not found", zap.Error(err))
		case eris.Is(err, linkedin.ErrParseFailed):
			log.Warn("linkedin post could not be parsed", zap.Error(err))
		default:
			log.Warn("linkedin scrape failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return nil, failed(err.Error())
	}
}
