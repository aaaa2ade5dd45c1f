package db

import "go.uber.org/zap"

// ------------------------------
// Event System
// ------------------------------
//
// The DB emits typed events when bookmarks are created or deleted, and when
// an enrichment result is saved. Register listeners to react to these changes.
//
// Example usage:
//
//	db.RegisterEventListener(db.OnBookmarkCreatedEvent, func(event db.Event) error {
//	    ev := event.(db.BookmarkCreatedEvent)
//	    orchestrator.Enqueue(ev.Bookmark)
//	    return nil
//	})
//
//	db.RegisterEventListener(db.OnBookmarkDeletedEvent, func(event db.Event) error {
//	    ev := event.(db.BookmarkDeletedEvent)
//	    return assetStore.DeleteAll(ctx, ev.Bookmark.ID)
//	})
//
// Event is the common interface for all database events.
type Event interface {
	Kind() EventKind
}

// EventKind represents all the kinds of events that can be emitted by the DB.
type EventKind int

const (
	// OnBookmarkCreatedEvent is emitted when a bookmark is created.
	OnBookmarkCreatedEvent EventKind = iota
	// OnBookmarkDeletedEvent is emitted when a bookmark is deleted.
	OnBookmarkDeletedEvent
	// OnEnrichmentSavedEvent is emitted when an enrichment result is saved.
	OnEnrichmentSavedEvent
)

func (k EventKind) String() string {
	switch k {
	case OnBookmarkCreatedEvent:
		return "bookmark_created"
	case OnBookmarkDeletedEvent:
		return "bookmark_deleted"
	case OnEnrichmentSavedEvent:
		return "enrichment_saved"
	default:
		return "unknown"
	}
}

// BookmarkCreatedEvent is emitted after a new bookmark is successfully inserted.
type BookmarkCreatedEvent struct {
	Bookmark Bookmark
}

func (e BookmarkCreatedEvent) Kind() EventKind { return OnBookmarkCreatedEvent }

// BookmarkDeletedEvent is emitted after a bookmark is deleted.
// The Bookmark field contains the state before deletion (if available).
type BookmarkDeletedEvent struct {
	Bookmark Bookmark
}

func (e BookmarkDeletedEvent) Kind() EventKind { return OnBookmarkDeletedEvent }

// EnrichmentSavedEvent is emitted after an enrichment result is written.
type EnrichmentSavedEvent struct {
	BookmarkID int64
	Screenshot bool
	LinkedIn   bool
}

func (e EnrichmentSavedEvent) Kind() EventKind { return OnEnrichmentSavedEvent }

// EventListener is a callback that handles events of a specific kind.
type EventListener func(event Event) error

// RegisterEventListener adds a listener for a specific event kind.
// Listeners are called synchronously in registration order after the DB operation succeeds.
func (db *DB) RegisterEventListener(eventKind EventKind, listener EventListener) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.eventListeners == nil {
		db.eventListeners = make(map[EventKind][]EventListener)
	}
	db.eventListeners[eventKind] = append(db.eventListeners[eventKind], listener)
}

// emit dispatches an event to all registered listeners for that event kind.
func (db *DB) emit(event Event) {
	db.mu.RLock()
	listeners := db.eventListeners[event.Kind()]
	db.mu.RUnlock()

	for _, listener := range listeners {
		if err := listener(event); err != nil {
			zap.L().Warn("event listener error",
				zap.Stringer("event", event.Kind()),
				zap.Error(err),
			)
		}
	}
}
