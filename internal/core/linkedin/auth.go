package linkedin

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/browser"
)

const (
	// LoginURL is the LinkedIn sign-in form.
	LoginURL = "https://www.linkedin.com/login"

	DefaultLoginTimeout = 45 * time.Second

	// submitWait bounds how long the form may take to redirect after submit.
	submitWait = 15 * time.Second
)

// BrowserAuthenticator logs in through the LinkedIn web form in a fresh
// browser and captures the resulting cookies.
type BrowserAuthenticator struct {
	Browser browser.Options
	// Timeout bounds the whole login. Zero means DefaultLoginTimeout.
	Timeout time.Duration
	// LoginURL overrides the sign-in page. Empty means LoginURL.
	LoginURL string
	Log      *zap.Logger
}

// Authenticate implements Authenticator.
func (a *BrowserAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}
	loginURL := a.LoginURL
	if loginURL == "" {
		loginURL = LoginURL
	}
	log := a.Log
	if log == nil {
		log = zap.L()
	}
	log = log.Named("linkedin.auth")

	runCtx, cancelRun := context.WithTimeout(ctx, timeout)
	defer cancelRun()

	browserCtx, closeBrowser := browser.NewContext(runCtx, a.Browser)
	defer closeBrowser()

	var (
		finalURL string
		cookies  []*network.Cookie
	)
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible("#username", chromedp.ByQuery),
		chromedp.SendKeys("#username", creds.Email, chromedp.ByQuery),
		chromedp.SendKeys("#password", creds.Password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		waitForLeavingLogin(submitWait),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, eris.Wrapf(ErrAuthFailed, "login form: %v", err)
	}
	if isLoginWall(finalURL) {
		return nil, eris.Wrapf(ErrAuthFailed, "still on %s after submitting credentials", finalURL)
	}

	err = chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, eris.Wrapf(ErrAuthFailed, "read cookies: %v", err)
	}
	if len(cookies) == 0 {
		return nil, eris.Wrap(ErrAuthFailed, "no cookies after login")
	}

	log.Debug("login completed", zap.String("final_url", finalURL), zap.Int("cookies", len(cookies)))
	return NewSession(cookieParams(cookies), time.Now()), nil
}

// waitForLeavingLogin polls the location until the browser leaves the
// sign-in form or wait elapses. Staying on the form is not an error here:
// the caller inspects the final location.
func waitForLeavingLogin(wait time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.NewTimer(wait)
		defer deadline.Stop()
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			var loc string
			if err := chromedp.Location(&loc).Do(ctx); err != nil {
				return err
			}
			if !onLoginForm(loc) {
				return nil
			}
			select {
			case <-ticker.C:
			case <-deadline.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

func onLoginForm(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/login") || strings.HasPrefix(u.Path, "/uas/login")
}

// cookieParams converts cookies read from a browser into the form accepted
// by network.SetCookies.
func cookieParams(cookies []*network.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if !c.Session && c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		out = append(out, p)
	}
	return out
}
