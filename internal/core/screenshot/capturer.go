// Package screenshot renders web pages to PNG images.
package screenshot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/browser"
)

// Timeout defaults for capture operations
const (
	DefaultTimeout     = 35 * time.Second
	DefaultIdleTimeout = 10 * time.Second
	DefaultSettleDelay = 500 * time.Millisecond
)

var (
	ErrNavigationFailed = eris.New("navigation failed")
	ErrTimeout          = eris.New("screenshot timed out")
	ErrCaptureFailed    = eris.New("screenshot capture failed")
)

// Options controls a Capturer.
type Options struct {
	Browser browser.Options
	// Timeout is the deadline for navigation + rendering + capture.
	Timeout time.Duration
	// IdleTimeout bounds the wait for network idle.
	IdleTimeout time.Duration
	// Settle is the extra delay after network idle.
	Settle time.Duration
}

// DefaultOptions returns the default capture options.
func DefaultOptions() Options {
	return Options{
		Browser:     browser.DefaultOptions(),
		Timeout:     DefaultTimeout,
		IdleTimeout: DefaultIdleTimeout,
		Settle:      DefaultSettleDelay,
	}
}

// Capturer takes viewport screenshots in a fresh, cookie-less browser.
type Capturer struct {
	opts Options
	log  *zap.Logger
}

// NewCapturer returns a Capturer. Zero durations fall back to the defaults.
func NewCapturer(opts Options, log *zap.Logger) *Capturer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if log == nil {
		log = zap.L()
	}
	return &Capturer{opts: opts, log: log.Named("screenshot")}
}

// Capture loads url and returns a PNG of the visible viewport.
func (c *Capturer) Capture(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, eris.Wrap(ErrNavigationFailed, "empty URL")
	}

	runCtx, cancelRun := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancelRun()

	browserCtx, closeBrowser := browser.NewContext(runCtx, c.opts.Browser)
	defer closeBrowser()

	start := time.Now()
	resp, err := browser.Navigate(browserCtx, url, c.opts.IdleTimeout, c.opts.Settle)
	if err != nil {
		if isTimeout(runCtx, err) {
			return nil, eris.Wrapf(ErrTimeout, "navigating to %s after %s", url, c.opts.Timeout)
		}
		return nil, eris.Wrapf(ErrNavigationFailed, "%s: %v", url, err)
	}
	if resp != nil && (resp.Status < 200 || resp.Status > 299) {
		return nil, eris.Wrapf(ErrNavigationFailed, "%s: HTTP %d", url, resp.Status)
	}

	var buf []byte
	if err := chromedp.Run(browserCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		if isTimeout(runCtx, err) {
			return nil, eris.Wrapf(ErrTimeout, "capturing %s after %s", url, c.opts.Timeout)
		}
		return nil, eris.Wrapf(ErrCaptureFailed, "%s: %v", url, err)
	}
	if len(buf) == 0 {
		return nil, eris.Wrapf(ErrCaptureFailed, "%s: empty image", url)
	}

	c.log.Debug("screenshot captured",
		zap.String("url", url),
		zap.Int("bytes", len(buf)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return buf, nil
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
