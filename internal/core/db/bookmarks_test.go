package db

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddBookmark tests bookmark creation.
func TestAddBookmark(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	t.Run("creates bookmark successfully", func(t *testing.T) {
		b, err := db.AddBookmark("https://example.com", "Example Site")
		require.NoError(t, err)
		assert.Positive(t, b.ID)
		assert.Equal(t, "https://example.com", b.URL)
		assert.Equal(t, "Example Site", b.Title)
		assert.NotEmpty(t, b.CreatedAt)
	})

	t.Run("new bookmark is not enriched", func(t *testing.T) {
		b, err := db.AddBookmark("https://example.org", "Fresh")
		require.NoError(t, err)
		assert.False(t, b.Screenshot)
		assert.Nil(t, b.LinkedIn)
		assert.Empty(t, b.EnrichedAt)

		stored, err := db.GetBookmark(b.ID)
		require.NoError(t, err)
		assert.False(t, stored.Screenshot)
		assert.Nil(t, stored.LinkedIn)
		assert.Empty(t, stored.EnrichedAt)
	})

	t.Run("assigns sequential IDs", func(t *testing.T) {
		b1, _ := db.AddBookmark("https://site1.com", "Site 1")
		b2, _ := db.AddBookmark("https://site2.com", "Site 2")

		if b2.ID <= b1.ID {
			t.Errorf("expected id2 (%d) > id1 (%d)", b2.ID, b1.ID)
		}
	})
}

// TestGetBookmark tests retrieving a single bookmark.
func TestGetBookmark(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	t.Run("retrieves existing bookmark", func(t *testing.T) {
		created, _ := db.AddBookmark("https://example.com", "Example Site")

		b, err := db.GetBookmark(created.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if b.ID != created.ID {
			t.Errorf("expected ID %d, got %d", created.ID, b.ID)
		}
		if b.URL != "https://example.com" {
			t.Errorf("expected URL 'https://example.com', got %q", b.URL)
		}
		if b.Title != "Example Site" {
			t.Errorf("expected Title 'Example Site', got %q", b.Title)
		}
		if b.CreatedAt == "" {
			t.Error("expected CreatedAt to be set")
		}
	})

	t.Run("returns ErrBookmarkNotFound for non-existent bookmark", func(t *testing.T) {
		_, err := db.GetBookmark(99999)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBookmarkNotFound))
	})
}

// TestListBookmarks tests listing bookmarks.
func TestListBookmarks(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	t.Run("returns empty list when no bookmarks", func(t *testing.T) {
		bookmarks, err := db.ListBookmarks(0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(bookmarks) != 0 {
			t.Errorf("expected empty list, got %d items", len(bookmarks))
		}
	})

	t.Run("returns all bookmarks", func(t *testing.T) {
		db.AddBookmark("https://site1.com", "Site 1")
		db.AddBookmark("https://site2.com", "Site 2")
		db.AddBookmark("https://site3.com", "Site 3")

		bookmarks, err := db.ListBookmarks(0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(bookmarks) != 3 {
			t.Errorf("expected 3 bookmarks, got %d", len(bookmarks))
		}
	})

	t.Run("respects limit", func(t *testing.T) {
		bookmarks, err := db.ListBookmarks(2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(bookmarks) != 2 {
			t.Errorf("expected 2 bookmarks with limit, got %d", len(bookmarks))
		}
	})

	t.Run("orders by created_at DESC", func(t *testing.T) {
		db2 := newTestDB(t)
		defer db2.Close()

		for _, row := range []struct{ url, title, createdAt string }{
			{"https://first.com", "First", "2024-01-01T00:00:00Z"},
			{"https://second.com", "Second", "2024-01-02T00:00:00Z"},
			{"https://third.com", "Third", "2024-01-03T00:00:00Z"},
		} {
			_, err := db2.db.Exec("INSERT INTO bookmarks (url, title, created_at) VALUES (?, ?, ?)",
				row.url, row.title, row.createdAt)
			require.NoError(t, err)
		}

		bookmarks, err := db2.ListBookmarks(0)
		require.NoError(t, err)
		require.Len(t, bookmarks, 3)

		assert.Equal(t, "Third", bookmarks[0].Title)
		assert.Equal(t, "Second", bookmarks[1].Title)
		assert.Equal(t, "First", bookmarks[2].Title)
	})
}

// TestListUnenriched tests listing bookmarks awaiting enrichment.
func TestListUnenriched(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	a, _ := db.AddBookmark("https://a.example.com", "A")
	b, _ := db.AddBookmark("https://b.example.com", "B")
	c, _ := db.AddBookmark("https://c.example.com", "C")

	require.NoError(t, db.UpdateEnrichment(b.ID, true, nil))

	t.Run("excludes enriched bookmarks", func(t *testing.T) {
		pending, err := db.ListUnenriched(0)
		require.NoError(t, err)
		require.Len(t, pending, 2)

		ids := []int64{pending[0].ID, pending[1].ID}
		assert.ElementsMatch(t, []int64{a.ID, c.ID}, ids)
	})

	t.Run("failed enrichment still counts as enriched", func(t *testing.T) {
		require.NoError(t, db.UpdateEnrichment(a.ID, false, nil))

		pending, err := db.ListUnenriched(0)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, c.ID, pending[0].ID)
	})

	t.Run("respects limit", func(t *testing.T) {
		db.AddBookmark("https://d.example.com", "D")

		pending, err := db.ListUnenriched(1)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})
}

// TestUpdateEnrichment tests writing enrichment results.
func TestUpdateEnrichment(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	t.Run("stores screenshot flag and linkedin post", func(t *testing.T) {
		b, _ := db.AddBookmark("https://www.linkedin.com/posts/jane_hello-activity-1", "Post")

		post := &LinkedInPost{
			Author:   "Jane Doe",
			Headline: "Engineer",
			Date:     "2d",
			Text:     "Hello world",
			Images:   []string{"img_0.jpg", "img_1.png"},
		}
		require.NoError(t, db.UpdateEnrichment(b.ID, true, post))

		got, err := db.GetBookmark(b.ID)
		require.NoError(t, err)
		assert.True(t, got.Screenshot)
		require.NotNil(t, got.LinkedIn)
		assert.Equal(t, *post, *got.LinkedIn)
		assert.NotEmpty(t, got.EnrichedAt)
	})

	t.Run("nil post leaves linkedin empty", func(t *testing.T) {
		b, _ := db.AddBookmark("https://example.com", "Plain")

		require.NoError(t, db.UpdateEnrichment(b.ID, false, nil))

		got, err := db.GetBookmark(b.ID)
		require.NoError(t, err)
		assert.False(t, got.Screenshot)
		assert.Nil(t, got.LinkedIn)
		assert.NotEmpty(t, got.EnrichedAt)
	})

	t.Run("post without images stores empty list", func(t *testing.T) {
		b, _ := db.AddBookmark("https://www.linkedin.com/posts/x-activity-2", "Text only")

		post := &LinkedInPost{Author: "Someone", Text: "No images"}
		require.NoError(t, db.UpdateEnrichment(b.ID, false, post))
		assert.Nil(t, post.Images, "caller's post should not be modified")

		got, err := db.GetBookmark(b.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LinkedIn)
		assert.NotNil(t, got.LinkedIn.Images)
		assert.Empty(t, got.LinkedIn.Images)
	})

	t.Run("returns ErrBookmarkNotFound for deleted bookmark", func(t *testing.T) {
		b, _ := db.AddBookmark("https://gone.example.com", "Gone")
		require.NoError(t, db.DeleteBookmark(b.ID))

		err := db.UpdateEnrichment(b.ID, true, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBookmarkNotFound))

		_, err = db.GetBookmark(b.ID)
		assert.True(t, errors.Is(err, ErrBookmarkNotFound), "update must not resurrect the row")
	})
}

// TestDeleteBookmark tests deleting a bookmark.
func TestDeleteBookmark(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	t.Run("deletes existing bookmark", func(t *testing.T) {
		b, _ := db.AddBookmark("https://example.com", "To Delete")

		err := db.DeleteBookmark(b.ID)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		_, err = db.GetBookmark(b.ID)
		if err == nil {
			t.Error("expected error when getting deleted bookmark")
		}
	})

	t.Run("returns error for non-existent bookmark", func(t *testing.T) {
		err := db.DeleteBookmark(99999)
		if err == nil {
			t.Fatal("expected error for non-existent bookmark, got nil")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected 'not found' error, got %v", err)
		}
	})
}

// TestValidateBookmarkURL tests URL validation.
func TestValidateBookmarkURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
		errMsg  string
	}{
		{"valid http URL", "http://example.com", false, ""},
		{"valid https URL", "https://example.com", false, ""},
		{"valid URL with path", "https://example.com/path/to/page", false, ""},
		{"valid linkedin post", "https://www.linkedin.com/posts/jane_activity-123", false, ""},
		{"valid URL with port", "https://example.com:8080/path", false, ""},
		{"empty URL", "", true, "empty URL"},
		{"no scheme", "example.com", true, "scheme must be http or https"},
		{"ftp scheme", "ftp://example.com", true, "scheme must be http or https"},
		{"javascript scheme", "javascript:alert(1)", true, "scheme must be http or https"},
		{"file scheme", "file:///etc/passwd", true, "scheme must be http or https"},
		{"missing host", "https://", true, "missing host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBookmarkURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidURL) {
					t.Errorf("expected ErrInvalidURL, got %v", err)
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error should contain %q, got %v", tt.errMsg, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestAddBookmarkValidation tests that AddBookmark validates URLs.
func TestAddBookmarkValidation(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	for _, bad := range []string{"not-a-url", "ftp://example.com", ""} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := db.AddBookmark(bad, "Invalid")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidURL))
		})
	}

	t.Run("invalid URL does not emit event", func(t *testing.T) {
		called := false
		db.RegisterEventListener(OnBookmarkCreatedEvent, func(Event) error {
			called = true
			return nil
		})
		_, _ = db.AddBookmark("javascript:alert(1)", "bad")
		assert.False(t, called)
	})
}
