package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/assets"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/core/enrich"
)

func (ws *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (ws *Server) listBookmarks(w http.ResponseWriter, _ *http.Request) {
	bookmarks, err := ws.db.ListBookmarks(0)
	if err != nil {
		ws.log.Error("failed to list bookmarks", zap.Error(err))
		ws.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]bookmarkView, 0, len(bookmarks))
	for _, b := range bookmarks {
		views = append(views, newBookmarkView(b))
	}
	ws.writeJSON(w, http.StatusOK, views)
}

// createBookmark stores the bookmark and answers immediately. Enrichment is
// started by the BookmarkCreatedEvent listener and never affects the response.
func (ws *Server) createBookmark(w http.ResponseWriter, r *http.Request) {
	var req createBookmarkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		ws.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := ws.db.AddBookmark(req.URL, req.Title)
	if err != nil {
		if errors.Is(err, db.ErrInvalidURL) {
			ws.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ws.log.Error("failed to insert bookmark", zap.String("url", req.URL), zap.Error(err))
		ws.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ws.writeJSON(w, http.StatusCreated, newBookmarkView(b))
}

func (ws *Server) getBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.bookmarkID(w, r)
	if !ok {
		return
	}

	b, err := ws.db.GetBookmark(id)
	if err != nil {
		ws.bookmarkError(w, id, err)
		return
	}
	ws.writeJSON(w, http.StatusOK, newBookmarkView(b))
}

// deleteBookmark removes the row. Asset cleanup runs in the
// BookmarkDeletedEvent listener and cannot change the status code.
func (ws *Server) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.bookmarkID(w, r)
	if !ok {
		return
	}

	if err := ws.db.DeleteBookmark(id); err != nil {
		ws.bookmarkError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getEnrichment reports the live state of a running enrichment, or the
// persisted one when nothing is in flight.
func (ws *Server) getEnrichment(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.bookmarkID(w, r)
	if !ok {
		return
	}

	b, err := ws.db.GetBookmark(id)
	if err != nil {
		ws.bookmarkError(w, id, err)
		return
	}

	view := enrichmentView{ID: id, EnrichedAt: b.EnrichedAt, State: string(enrich.StatePending)}
	if state, running := ws.runningState(id); running {
		view.State = string(state)
	} else if b.EnrichedAt != "" {
		view.State = string(enrich.StateDone)
	}
	ws.writeJSON(w, http.StatusOK, view)
}

func (ws *Server) runningState(id int64) (enrich.State, bool) {
	if ws.states == nil {
		return "", false
	}
	return ws.states.State(id)
}

func (ws *Server) getScreenshot(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.bookmarkID(w, r)
	if !ok {
		return
	}

	data, err := ws.assets.Screenshot(r.Context(), id)
	if err != nil {
		ws.assetError(w, id, err)
		return
	}
	ws.writeAsset(w, "image/png", data)
}

func (ws *Server) getLinkedInImage(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.bookmarkID(w, r)
	if !ok {
		return
	}

	name, err := assets.SanitizeFilename(chi.URLParam(r, "filename"))
	if err != nil {
		ws.writeError(w, http.StatusNotFound, "image not found")
		return
	}

	data, err := ws.assets.LinkedInImage(r.Context(), id, name)
	if err != nil {
		ws.assetError(w, id, err)
		return
	}
	ws.writeAsset(w, http.DetectContentType(data), data)
}

func (ws *Server) writeAsset(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		ws.log.Debug("failed to write asset", zap.Error(err))
	}
}

func (ws *Server) bookmarkError(w http.ResponseWriter, id int64, err error) {
	if errors.Is(err, db.ErrBookmarkNotFound) {
		ws.writeError(w, http.StatusNotFound, "bookmark not found")
		return
	}
	ws.log.Error("bookmark lookup failed", zap.Int64("bookmark_id", id), zap.Error(err))
	ws.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (ws *Server) assetError(w http.ResponseWriter, id int64, err error) {
	switch {
	case eris.Is(err, assets.ErrNotFound), eris.Is(err, assets.ErrInvalidFilename):
		ws.writeError(w, http.StatusNotFound, "asset not found")
	default:
		ws.log.Error("asset read failed", zap.Int64("bookmark_id", id), zap.Error(err))
		ws.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
