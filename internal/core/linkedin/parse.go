package linkedin

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/seckatie/linkshelf/internal/core/db"
)

// Selector families for the two LinkedIn post layouts currently served.
const (
	containerSelector = ".feed-shared-update-v2, .update-components-actor, .feed-shared-actor, [data-urn^='urn:li:activity']"

	authorSelector   = ".update-components-actor__name, .feed-shared-actor__name"
	headlineSelector = ".update-components-actor__description, .feed-shared-actor__description"
	dateSelector     = ".update-components-actor__sub-description, .feed-shared-actor__sub-description"
	textSelector     = ".update-components-text, .feed-shared-update-v2__description, .feed-shared-text"
	imageSelector    = ".update-components-image__image img, .feed-shared-image__image img"

	seeMoreSelector = "button.see-more, button[aria-label*='see more'], button.feed-shared-inline-show-more-text__see-more-less-toggle"
)

var unavailableMarkers = []string{
	"this post cannot be displayed",
	"this post is unavailable",
	"this content isn't available",
	"this page doesn't exist",
	"post not found",
}

// ParsedPost is the result of parsing a post page before images are
// downloaded. ImageURLs are absolute.
type ParsedPost struct {
	Author    string
	Headline  string
	Date      string
	Text      string
	ImageURLs []string
}

// Post converts the parsed fields to the persisted form, using the given
// stored image filenames.
func (p ParsedPost) Post(images []string) *db.LinkedInPost {
	if images == nil {
		images = []string{}
	}
	return &db.LinkedInPost{
		Author:   p.Author,
		Headline: p.Headline,
		Date:     p.Date,
		Text:     p.Text,
		Images:   images,
	}
}

// ParsePost extracts a post from rendered page HTML. pageURL resolves
// relative image sources.
//
// It returns ErrPostNotFound when the page holds no post and ErrParseFailed
// when a post is present but its author cannot be read. Other missing fields
// are left empty.
func ParsePost(html, pageURL string) (ParsedPost, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ParsedPost{}, eris.Wrapf(ErrParseFailed, "parse HTML: %v", err)
	}

	if doc.Find(containerSelector).Length() == 0 {
		if marker := unavailableMarker(doc); marker != "" {
			return ParsedPost{}, eris.Wrapf(ErrPostNotFound, "page says %q", marker)
		}
		return ParsedPost{}, eris.Wrap(ErrPostNotFound, "no post container")
	}

	post := ParsedPost{
		Author:   firstLine(doc.Find(authorSelector).First().Text()),
		Headline: firstLine(doc.Find(headlineSelector).First().Text()),
		Date:     firstLine(doc.Find(dateSelector).First().Text()),
		Text:     cleanText(doc.Find(textSelector).First().Text()),
	}
	if post.Author == "" {
		return ParsedPost{}, eris.Wrap(ErrParseFailed, "author not found")
	}

	base, _ := url.Parse(pageURL)
	seen := make(map[string]bool)
	doc.Find(imageSelector).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			src, ok = s.Attr("data-delayed-url")
		}
		if !ok {
			return
		}
		abs := resolveURL(base, strings.TrimSpace(src))
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		post.ImageURLs = append(post.ImageURLs, abs)
	})

	return post, nil
}

func unavailableMarker(doc *goquery.Document) string {
	body := strings.ToLower(doc.Find("body").Text())
	for _, m := range unavailableMarkers {
		if strings.Contains(body, m) {
			return m
		}
	}
	return ""
}

// firstLine keeps the first non-empty line. LinkedIn repeats names and
// dates in visually hidden spans on the following lines.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// cleanText trims each line and collapses runs of blank lines.
func cleanText(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// resolveURL resolves a potentially relative URL against a base URL.
// data: and blob: sources are skipped.
func resolveURL(base *url.URL, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "blob:") {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		refURL = base.ResolveReference(refURL)
	}
	if refURL.Scheme != "http" && refURL.Scheme != "https" {
		return ""
	}
	return refURL.String()
}
