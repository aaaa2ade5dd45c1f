package linkedin

import (
	"net/url"
	"regexp"
	"strings"
)

var postHosts = map[string]bool{
	"linkedin.com":     true,
	"www.linkedin.com": true,
	"m.linkedin.com":   true,
}

var (
	postsPath  = regexp.MustCompile(`^/posts/[^/]+/?$`)
	updatePath = regexp.MustCompile(`^/feed/update/urn:li:(activity|share|ugcPost):\d+/?$`)
)

// IsPostURL reports whether raw points at a single LinkedIn post.
// Profiles, company pages, the feed and other hosts are not posts.
func IsPostURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !postHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	// Accept both raw and percent-encoded URNs.
	path := u.Path
	return postsPath.MatchString(path) || updatePath.MatchString(path)
}

// isLoginWall reports whether a browser landed on a page that asks for
// credentials instead of showing content.
func isLoginWall(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	p := u.Path
	return strings.HasPrefix(p, "/login") ||
		strings.HasPrefix(p, "/checkpoint") ||
		strings.HasPrefix(p, "/authwall") ||
		strings.HasPrefix(p, "/uas/login")
}
