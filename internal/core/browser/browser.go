// Package browser launches isolated Chrome instances through chromedp.
//
// Every context returned by NewContext owns its own browser process with a
// throwaway profile, so cookies and storage never leak between callers.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// UserAgent is sent by both the browser and plain HTTP downloads.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 linkshelf/1.0"

const (
	DefaultWindowWidth  = 1280
	DefaultWindowHeight = 720
)

// macChromePath is where Google Chrome installs itself on macOS, which is not
// on PATH.
const macChromePath = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"

// DefaultChromePath returns a best-effort executable path for goos, or "" to
// let chromedp search for one.
func DefaultChromePath(goos string) string {
	if goos == "darwin" {
		return macChromePath
	}
	return ""
}

// Options controls how Chrome is started.
type Options struct {
	// ChromePath optionally overrides the Chrome/Chromium executable path.
	// If empty, chromedp will try to find a browser on PATH / default locations.
	ChromePath string
	// Headless controls whether Chrome runs without a visible window.
	// Set to false to debug scraping in a real window ("headful").
	Headless bool
	// WindowWidth and WindowHeight size the viewport. Zero means 1280x720.
	WindowWidth  int
	WindowHeight int
}

// DefaultOptions returns headless options with the default viewport.
func DefaultOptions() Options {
	return Options{
		Headless:     true,
		WindowWidth:  DefaultWindowWidth,
		WindowHeight: DefaultWindowHeight,
	}
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	width, height := o.WindowWidth, o.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = DefaultWindowWidth, DefaultWindowHeight
	}

	allocatorOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocatorOpts = append(allocatorOpts,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.WindowSize(width, height),
		chromedp.UserAgent(UserAgent),
	)
	if o.ChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(o.ChromePath))
	}
	if o.Headless {
		allocatorOpts = append(allocatorOpts, chromedp.Headless)
	} else {
		allocatorOpts = append(allocatorOpts, chromedp.Flag("headless", false))
	}
	return allocatorOpts
}

// NewContext starts a fresh browser bound to the returned context. The cancel
// func shuts the browser down and removes its temporary profile.
func NewContext(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts.allocatorOptions()...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}

// Navigate loads url in the browser held by ctx and waits for the
// networkIdle lifecycle event. Waiting stops after idleTimeout, and the page
// is then used as it is. The settle delay runs afterwards. The main document
// response is returned so callers can check its status.
func Navigate(ctx context.Context, url string, idleTimeout, settle time.Duration) (*network.Response, error) {
	idle := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Run(ctx, page.SetLifecycleEventsEnabled(true)); err != nil {
		return nil, err
	}

	resp, err := chromedp.RunResponse(ctx, chromedp.Navigate(url))
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()
	select {
	case <-idle:
	case <-timer.C:
		zap.L().Named("browser").Debug("network idle not reached, using page as-is",
			zap.String("url", url),
			zap.Duration("idle_timeout", idleTimeout),
		)
	case <-ctx.Done():
		return resp, ctx.Err()
	}

	// Small delay to allow any final JS execution after network idle
	if settle > 0 {
		t := time.NewTimer(settle)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return resp, ctx.Err()
		}
	}
	return resp, nil
}

// CurrentURL returns the location of the page held by ctx.
func CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := chromedp.Run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}
