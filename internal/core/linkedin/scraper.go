// Package linkedin scrapes LinkedIn posts for bookmark enrichment.
//
// A Manager keeps one authenticated Session, logging in through a browser
// when needed. A Scraper renders a post with that session's cookies, parses
// it with ParsePost and stores the post images as assets.
package linkedin

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seckatie/linkshelf/internal/core/assets"
	"github.com/seckatie/linkshelf/internal/core/browser"
	"github.com/seckatie/linkshelf/internal/core/db"
)

// Scraper defaults
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultIdleTimeout       = 5 * time.Second
	DefaultContainerWait     = 8 * time.Second
	DefaultMaxImages         = 5
)

// ImageStore persists downloaded post images.
type ImageStore interface {
	Put(ctx context.Context, id int64, kind assets.Kind, filename string, data []byte) error
}

// ScraperOptions configures a Scraper. Zero values use the defaults above.
type ScraperOptions struct {
	Browser           browser.Options
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration
	ContainerWait     time.Duration
	MaxImages         int
	ImageTimeout      time.Duration
	MaxImageSize      int64
	// ImageRate is the number of image downloads per second across all scrapes.
	ImageRate float64
}

// DefaultScraperOptions returns the default scraper configuration.
func DefaultScraperOptions() ScraperOptions {
	return ScraperOptions{
		Browser:           browser.DefaultOptions(),
		NavigationTimeout: DefaultNavigationTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ContainerWait:     DefaultContainerWait,
		MaxImages:         DefaultMaxImages,
		ImageTimeout:      DefaultImageTimeout,
		MaxImageSize:      MaxImageSize,
		ImageRate:         DefaultImageRate,
	}
}

// Scraper extracts LinkedIn posts with an authenticated session.
type Scraper struct {
	opts    ScraperOptions
	images  ImageStore
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewScraper returns a Scraper that stores images in images.
func NewScraper(opts ScraperOptions, images ImageStore, log *zap.Logger) *Scraper {
	def := DefaultScraperOptions()
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = def.NavigationTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = def.IdleTimeout
	}
	if opts.ContainerWait <= 0 {
		opts.ContainerWait = def.ContainerWait
	}
	if opts.MaxImages < 0 {
		opts.MaxImages = 0
	}
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = def.ImageTimeout
	}
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = def.MaxImageSize
	}
	if opts.ImageRate <= 0 {
		opts.ImageRate = def.ImageRate
	}
	if log == nil {
		log = zap.L()
	}
	return &Scraper{
		opts:    opts,
		images:  images,
		limiter: rate.NewLimiter(rate.Limit(opts.ImageRate), 1),
		log:     log.Named("linkedin.scraper"),
	}
}

// Scrape loads url in a fresh browser seeded with the session cookies,
// parses the post and stores up to MaxImages of its images.
//
// A redirect to a login wall returns ErrNotAuthenticated. Image failures are
// logged and skipped; only stored filenames are returned.
func (s *Scraper) Scrape(ctx context.Context, bookmarkID int64, url string, session *Session) (*db.LinkedInPost, error) {
	if session == nil {
		return nil, eris.Wrap(ErrNotAuthenticated, "no session")
	}
	log := s.log.With(zap.Int64("bookmark_id", bookmarkID), zap.String("url", url))

	html, finalURL, err := s.render(ctx, url, session)
	if err != nil {
		return nil, err
	}

	parsed, err := ParsePost(html, finalURL)
	if err != nil {
		return nil, err
	}

	stored := s.storeImages(ctx, bookmarkID, parsed.ImageURLs, session, log)
	log.Info("linkedin post scraped",
		zap.String("author", parsed.Author),
		zap.Int("images_found", len(parsed.ImageURLs)),
		zap.Int("images_stored", len(stored)),
	)
	return parsed.Post(stored), nil
}

func (s *Scraper) render(ctx context.Context, url string, session *Session) (string, string, error) {
	runCtx, cancelRun := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancelRun()

	browserCtx, closeBrowser := browser.NewContext(runCtx, s.opts.Browser)
	defer closeBrowser()

	if err := chromedp.Run(browserCtx, network.SetCookies(session.Cookies())); err != nil {
		return "", "", eris.Wrap(err, "seed session cookies")
	}

	if _, err := browser.Navigate(browserCtx, url, s.opts.IdleTimeout, 0); err != nil {
		return "", "", eris.Wrapf(err, "navigate to %s", url)
	}

	finalURL, err := browser.CurrentURL(browserCtx)
	if err != nil {
		return "", "", eris.Wrap(err, "read location")
	}
	if isLoginWall(finalURL) {
		return "", "", eris.Wrapf(ErrNotAuthenticated, "redirected to %s", finalURL)
	}

	// A missing container is reported by ParsePost.
	waitCtx, cancelWait := context.WithTimeout(browserCtx, s.opts.ContainerWait)
	_ = chromedp.Run(waitCtx, chromedp.WaitReady(containerSelector, chromedp.ByQuery))
	cancelWait()

	clickCtx, cancelClick := context.WithTimeout(browserCtx, time.Second)
	if err := chromedp.Run(clickCtx,
		chromedp.Click(seeMoreSelector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(300*time.Millisecond),
	); err == nil {
		s.log.Debug("expanded post text", zap.String("url", url))
	}
	cancelClick()

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", "", eris.Wrap(err, "read page HTML")
	}
	return html, finalURL, nil
}

func (s *Scraper) storeImages(ctx context.Context, bookmarkID int64, urls []string, session *Session, log *zap.Logger) []string {
	stored := []string{}
	if len(urls) == 0 || s.opts.MaxImages == 0 || s.images == nil {
		return stored
	}
	if len(urls) > s.opts.MaxImages {
		urls = urls[:s.opts.MaxImages]
	}

	dl, err := newDownloader(session, s.opts.ImageTimeout, s.limiter, s.opts.MaxImageSize)
	if err != nil {
		log.Warn("failed to prepare image downloader", zap.Error(err))
		return stored
	}

	for _, u := range urls {
		data, ext, err := dl.fetch(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return stored
			}
			log.Warn("failed to download linkedin image", zap.String("image_url", u), zap.Error(err))
			continue
		}
		name := fmt.Sprintf("img_%d%s", len(stored), ext)
		if err := s.images.Put(ctx, bookmarkID, assets.KindLinkedInImage, name, data); err != nil {
			log.Warn("failed to store linkedin image", zap.String("filename", name), zap.Error(err))
			continue
		}
		stored = append(stored, name)
	}
	return stored
}
