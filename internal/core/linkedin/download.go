package linkedin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/seckatie/linkshelf/internal/core/browser"
)

// Download limits
const (
	DefaultImageTimeout = 10 * time.Second
	MaxImageSize        = 5 * 1024 * 1024 // 5MB
	DefaultImageRate    = 2               // downloads per second
)

var errNotImage = eris.New("not an image")

// imageExtensions maps sniffed content types to stored file extensions.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/avif": ".avif",
}

// downloader fetches post images with the session cookies attached.
type downloader struct {
	client  *http.Client
	limiter *rate.Limiter
	maxSize int64
}

func newDownloader(s *Session, timeout time.Duration, limiter *rate.Limiter, maxSize int64) (*downloader, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if s != nil {
		seedJar(jar, s.cookies)
	}
	if timeout <= 0 {
		timeout = DefaultImageTimeout
	}
	if maxSize <= 0 {
		maxSize = MaxImageSize
	}
	return &downloader{
		client:  &http.Client{Timeout: timeout, Jar: jar},
		limiter: limiter,
		maxSize: maxSize,
	}, nil
}

func seedJar(jar http.CookieJar, cookies []*network.CookieParam) {
	byHost := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if strings.HasPrefix(c.Domain, ".") {
			hc.Domain = c.Domain
		}
		byHost[host] = append(byHost[host], hc)
	}
	for host, cs := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, cs)
	}
}

// fetch downloads one image and returns its bytes and stored file extension.
func (d *downloader) fetch(ctx context.Context, urlStr string) ([]byte, string, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", browser.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > d.maxSize {
		return nil, "", fmt.Errorf("image larger than %d bytes", d.maxSize)
	}

	contentType := mediaType(http.DetectContentType(data))
	ext, ok := imageExtensions[contentType]
	if !ok {
		// DetectContentType does not know AVIF; trust the server for it.
		declared := mediaType(resp.Header.Get("Content-Type"))
		if declared != "image/avif" || !isAVIF(data) {
			return nil, "", eris.Wrapf(errNotImage, "%s", contentType)
		}
		ext = imageExtensions[declared]
	}
	return data, ext, nil
}

// mediaType strips parameters such as charset from a content type.
func mediaType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// isAVIF checks for an ISO-BMFF ftyp box with an AVIF brand.
func isAVIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "avif" || brand == "avis"
}
