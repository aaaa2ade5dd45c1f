package db

type Bookmark struct {
	ID    int64
	URL   string
	Title string
	// CreatedAt is stored in the DB as RFC3339 text.
	CreatedAt string
	// Screenshot reports whether a screenshot asset exists for this bookmark.
	Screenshot bool
	// LinkedIn is nil unless the URL was a LinkedIn post that scraped cleanly.
	LinkedIn *LinkedInPost
	// EnrichedAt is empty until the enrichment result has been written.
	EnrichedAt string
}

// LinkedInPost is the structured content scraped from a LinkedIn post.
// Images holds stored asset filenames, never the original media URLs.
type LinkedInPost struct {
	Author   string   `json:"author"`
	Headline string   `json:"headline"`
	Date     string   `json:"date"`
	Text     string   `json:"text"`
	Images   []string `json:"images"`
}
