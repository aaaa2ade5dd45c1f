package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// writeJSON encodes data with the JSON content-type header.
// Encoding failures are logged; the status line has already been sent.
func (ws *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.log.Warn("failed to encode response", zap.Error(err))
	}
}

func (ws *Server) writeError(w http.ResponseWriter, status int, msg string) {
	ws.writeJSON(w, status, errorView{Error: msg})
}

// bookmarkID parses the {id} URL parameter. On failure it writes a 400 and
// returns false.
func (ws *Server) bookmarkID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		ws.writeError(w, http.StatusBadRequest, "invalid bookmark id")
		return 0, false
	}
	return id, true
}

func (ws *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		ws.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
