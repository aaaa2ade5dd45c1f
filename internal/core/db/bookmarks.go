package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidURL is returned when a bookmark URL fails validation.
var ErrInvalidURL = errors.New("invalid URL")

// ErrBookmarkNotFound is returned when no bookmark row matches an id.
var ErrBookmarkNotFound = errors.New("bookmark not found")

// ValidateBookmarkURL validates that a URL is acceptable for bookmarking.
// It requires the URL to have http or https scheme and a non-empty host.
func ValidateBookmarkURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return nil
}

const bookmarkColumns = "id, url, title, created_at, screenshot, linkedin_data, enriched_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookmark(row rowScanner) (Bookmark, error) {
	var (
		b          Bookmark
		linkedin   sql.NullString
		enrichedAt sql.NullString
	)
	if err := row.Scan(&b.ID, &b.URL, &b.Title, &b.CreatedAt, &b.Screenshot, &linkedin, &enrichedAt); err != nil {
		return Bookmark{}, err
	}
	if linkedin.Valid && linkedin.String != "" {
		var post LinkedInPost
		if err := json.Unmarshal([]byte(linkedin.String), &post); err != nil {
			return Bookmark{}, fmt.Errorf("failed to decode linkedin data for bookmark %d: %w", b.ID, err)
		}
		b.LinkedIn = &post
	}
	b.EnrichedAt = enrichedAt.String
	return b, nil
}

// ------------------------------
// Bookmark methods
// ------------------------------

func (db *DB) GetBookmark(id int64) (Bookmark, error) {
	b, err := scanBookmark(db.db.QueryRow("SELECT "+bookmarkColumns+" FROM bookmarks WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Bookmark{}, fmt.Errorf("%w: %d", ErrBookmarkNotFound, id)
		}
		return Bookmark{}, fmt.Errorf("failed to get bookmark: %w", err)
	}
	return b, nil
}

// AddBookmark validates the URL, inserts a new bookmark and returns it.
//
// The returned bookmark is never enriched: Screenshot is false and LinkedIn is
// nil. Emits a BookmarkCreatedEvent after successful insert.
func (db *DB) AddBookmark(url string, title string) (Bookmark, error) {
	if err := ValidateBookmarkURL(url); err != nil {
		return Bookmark{}, err
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	result, err := db.db.Exec(
		"INSERT INTO bookmarks (url, title, created_at) VALUES (?, ?, ?)",
		url,
		title,
		createdAt,
	)
	if err != nil {
		return Bookmark{}, fmt.Errorf("failed to add bookmark: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Bookmark{}, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	b := Bookmark{
		ID:        id,
		URL:       url,
		Title:     title,
		CreatedAt: createdAt,
	}
	db.emit(BookmarkCreatedEvent{Bookmark: b})

	return b, nil
}

func (db *DB) ListBookmarks(limit int) ([]Bookmark, error) {
	return db.listBookmarks(`
		SELECT `+bookmarkColumns+`
		FROM bookmarks
		ORDER BY created_at DESC, id DESC
	`, limit)
}

// ListUnenriched returns bookmarks whose enrichment result was never written,
// oldest first, so a restarted process can pick them back up.
func (db *DB) ListUnenriched(limit int) ([]Bookmark, error) {
	return db.listBookmarks(`
		SELECT `+bookmarkColumns+`
		FROM bookmarks
		WHERE enriched_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, limit)
}

func (db *DB) listBookmarks(query string, limit int) ([]Bookmark, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = db.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("failed to close rows", zap.Error(err))
		}
	}()

	var out []Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookmarks: %w", err)
	}
	return out, nil
}

// UpdateEnrichment writes the enrichment outcome for a bookmark in a single
// statement, so readers never observe a half-applied result.
//
// It returns ErrBookmarkNotFound if the bookmark was deleted in the meantime;
// callers treat that as a no-op.
// Emits an EnrichmentSavedEvent after a successful update.
func (db *DB) UpdateEnrichment(id int64, screenshot bool, post *LinkedInPost) error {
	var linkedin sql.NullString
	if post != nil {
		stored := *post
		if stored.Images == nil {
			stored.Images = []string{}
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to encode linkedin data: %w", err)
		}
		linkedin = sql.NullString{String: string(data), Valid: true}
	}

	res, err := db.db.Exec(
		"UPDATE bookmarks SET screenshot = ?, linkedin_data = ?, enriched_at = ? WHERE id = ?",
		screenshot,
		linkedin,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update enrichment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrBookmarkNotFound, id)
	}

	db.emit(EnrichmentSavedEvent{
		BookmarkID: id,
		Screenshot: screenshot,
		LinkedIn:   post != nil,
	})
	return nil
}

// DeleteBookmark removes a bookmark from the database.
// Emits a BookmarkDeletedEvent after successful deletion.
func (db *DB) DeleteBookmark(id int64) error {
	// Fetch bookmark before deletion to include in event
	b, _ := db.GetBookmark(id)

	res, err := db.db.Exec("DELETE FROM bookmarks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrBookmarkNotFound, id)
	}

	// If we couldn't fetch earlier, at least include the ID
	if b.ID == 0 {
		b.ID = id
	}
	db.emit(BookmarkDeletedEvent{Bookmark: b})

	return nil
}
