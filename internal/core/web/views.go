package web

import "github.com/seckatie/linkshelf/internal/core/db"

type bookmarkView struct {
	ID         int64            `json:"id"`
	URL        string           `json:"url"`
	Title      string           `json:"title"`
	CreatedAt  string           `json:"created_at"`
	Screenshot bool             `json:"screenshot"`
	LinkedIn   *db.LinkedInPost `json:"linkedin_data"`
}

func newBookmarkView(b db.Bookmark) bookmarkView {
	return bookmarkView{
		ID:         b.ID,
		URL:        b.URL,
		Title:      b.Title,
		CreatedAt:  b.CreatedAt,
		Screenshot: b.Screenshot,
		LinkedIn:   b.LinkedIn,
	}
}

type createBookmarkRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type enrichmentView struct {
	ID         int64  `json:"id"`
	State      string `json:"state"`
	EnrichedAt string `json:"enriched_at,omitempty"`
}

type errorView struct {
	Error string `json:"error"`
}
