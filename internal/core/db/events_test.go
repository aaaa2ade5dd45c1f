package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventKindString tests the String method on EventKind.
func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind     EventKind
		expected string
	}{
		{OnBookmarkCreatedEvent, "bookmark_created"},
		{OnBookmarkDeletedEvent, "bookmark_deleted"},
		{OnEnrichmentSavedEvent, "enrichment_saved"},
		{EventKind(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// TestEventTypes tests that event types return correct Kind.
func TestEventTypes(t *testing.T) {
	assert.Equal(t, OnBookmarkCreatedEvent, BookmarkCreatedEvent{}.Kind())
	assert.Equal(t, OnBookmarkDeletedEvent, BookmarkDeletedEvent{}.Kind())
	assert.Equal(t, OnEnrichmentSavedEvent, EnrichmentSavedEvent{}.Kind())
}

// TestBookmarkCreatedEvent tests that event is emitted on bookmark creation.
func TestBookmarkCreatedEvent(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	var receivedEvent BookmarkCreatedEvent
	db.RegisterEventListener(OnBookmarkCreatedEvent, func(event Event) error {
		receivedEvent = event.(BookmarkCreatedEvent)
		return nil
	})

	b, _ := db.AddBookmark("https://example.com", "Test Site")

	if receivedEvent.Bookmark.ID != b.ID {
		t.Errorf("expected bookmark ID %d, got %d", b.ID, receivedEvent.Bookmark.ID)
	}
	if receivedEvent.Bookmark.URL != "https://example.com" {
		t.Errorf("expected URL 'https://example.com', got %q", receivedEvent.Bookmark.URL)
	}
	if receivedEvent.Bookmark.Title != "Test Site" {
		t.Errorf("expected Title 'Test Site', got %q", receivedEvent.Bookmark.Title)
	}
}

// TestBookmarkDeletedEvent tests that event is emitted on bookmark deletion.
func TestBookmarkDeletedEvent(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	b, _ := db.AddBookmark("https://example.com", "To Delete")

	var receivedEvent BookmarkDeletedEvent
	db.RegisterEventListener(OnBookmarkDeletedEvent, func(event Event) error {
		receivedEvent = event.(BookmarkDeletedEvent)
		return nil
	})

	require.NoError(t, db.DeleteBookmark(b.ID))

	assert.Equal(t, b.ID, receivedEvent.Bookmark.ID)
	assert.Equal(t, "https://example.com", receivedEvent.Bookmark.URL)
}

// TestEnrichmentSavedEvent tests that event is emitted when enrichment is written.
func TestEnrichmentSavedEvent(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	b, _ := db.AddBookmark("https://example.com", "Test")

	var events []EnrichmentSavedEvent
	db.RegisterEventListener(OnEnrichmentSavedEvent, func(event Event) error {
		events = append(events, event.(EnrichmentSavedEvent))
		return nil
	})

	require.NoError(t, db.UpdateEnrichment(b.ID, true, &LinkedInPost{Author: "A"}))
	require.Len(t, events, 1)
	assert.Equal(t, b.ID, events[0].BookmarkID)
	assert.True(t, events[0].Screenshot)
	assert.True(t, events[0].LinkedIn)

	t.Run("not emitted for missing bookmark", func(t *testing.T) {
		_ = db.UpdateEnrichment(99999, true, nil)
		assert.Len(t, events, 1)
	})
}

// TestMultipleListeners tests that multiple listeners are called.
func TestMultipleListeners(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	callCount := 0

	db.RegisterEventListener(OnBookmarkCreatedEvent, func(event Event) error {
		callCount++
		return nil
	})
	db.RegisterEventListener(OnBookmarkCreatedEvent, func(event Event) error {
		callCount++
		return nil
	})

	db.AddBookmark("https://example.com", "Test")

	if callCount != 2 {
		t.Errorf("expected 2 listeners to be called, got %d", callCount)
	}
}

// TestListenerErrors tests that listener errors are handled gracefully.
func TestListenerErrors(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	secondCalled := false

	db.RegisterEventListener(OnBookmarkCreatedEvent, func(event Event) error {
		return errors.New("first listener error")
	})
	db.RegisterEventListener(OnBookmarkCreatedEvent, func(event Event) error {
		secondCalled = true
		return nil
	})

	b, err := db.AddBookmark("https://example.com", "Test")
	if err != nil {
		t.Fatalf("expected no error from AddBookmark, got %v", err)
	}
	if b.ID <= 0 {
		t.Error("expected valid bookmark ID")
	}
	if !secondCalled {
		t.Error("expected second listener to be called despite first listener error")
	}
}

// TestListenersForDifferentEvents tests that listeners only receive their event type.
func TestListenersForDifferentEvents(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	createdCalled := false
	deletedCalled := false

	db.RegisterEventListener(OnBookmarkCreatedEvent, func(event Event) error {
		createdCalled = true
		return nil
	})
	db.RegisterEventListener(OnBookmarkDeletedEvent, func(event Event) error {
		deletedCalled = true
		return nil
	})

	db.AddBookmark("https://example.com", "Test")

	if !createdCalled {
		t.Error("expected created listener to be called")
	}
	if deletedCalled {
		t.Error("expected deleted listener NOT to be called")
	}
}
