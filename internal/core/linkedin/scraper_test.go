package linkedin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func requireBrowser(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("Chrome not available")
}

// fakeLinkedIn serves a post only to requests carrying the session cookie.
func fakeLinkedIn(t *testing.T) *httptest.Server {
	t.Helper()
	post := readFixture(t, "post_feed_shared.html")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/authwall":
			_, _ = w.Write([]byte("<html><body>Sign in</body></html>"))
		case "/posts/john_legacy-activity-1":
			if c, err := r.Cookie("li_at"); err != nil || c.Value != "valid" {
				http.Redirect(w, r, "/authwall?trk=x", http.StatusFound)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(post))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScrape_RequiresBrowser(t *testing.T) {
	requireBrowser(t)
	srv := fakeLinkedIn(t)

	opts := DefaultScraperOptions()
	opts.IdleTimeout = 2 * time.Second
	opts.ContainerWait = 2 * time.Second
	s := NewScraper(opts, &memImages{}, zap.NewNop())
	postURL := srv.URL + "/posts/john_legacy-activity-1"

	session := func(value string) *Session {
		return NewSession([]*network.CookieParam{{Name: "li_at", Value: value, URL: srv.URL, Path: "/"}}, time.Now())
	}

	t.Run("valid session", func(t *testing.T) {
		post, err := s.Scrape(context.Background(), 1, postURL, session("valid"))
		require.NoError(t, err)
		assert.Equal(t, "John Smith", post.Author)
		assert.Equal(t, "Legacy layout post", post.Text)
		assert.Empty(t, post.Images)
	})

	t.Run("expired session hits the authwall", func(t *testing.T) {
		_, err := s.Scrape(context.Background(), 1, postURL, session("expired"))
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNotAuthenticated))
	})
}
