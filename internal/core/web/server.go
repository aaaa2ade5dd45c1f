package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seckatie/linkshelf/internal/core/assets"
	"github.com/seckatie/linkshelf/internal/core/db"
	"github.com/seckatie/linkshelf/internal/core/enrich"
)

const shutdownTimeout = 10 * time.Second

// StateReporter reports the phase of an in-flight enrichment run.
type StateReporter interface {
	State(id int64) (enrich.State, bool)
}

type Server struct {
	db     *db.DB
	assets *assets.Store
	states StateReporter
	log    *zap.Logger
}

// NewServer builds the HTTP layer. states may be nil, in which case every
// bookmark reports its persisted state only.
func NewServer(database *db.DB, store *assets.Store, states StateReporter, log *zap.Logger) *Server {
	if log == nil {
		log = zap.L()
	}
	return &Server{
		db:     database,
		assets: store,
		states: states,
		log:    log.Named("web"),
	}
}

// Router returns the chi router serving the JSON API.
func (ws *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(ws.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	ws.registerRoutes(r)
	return r
}

func (ws *Server) registerRoutes(r chi.Router) {
	r.Get("/health", ws.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/bookmarks", func(r chi.Router) {
			r.Get("/", ws.listBookmarks)
			r.Post("/", ws.createBookmark)
			r.Get("/{id}", ws.getBookmark)
			r.Delete("/{id}", ws.deleteBookmark)
			r.Get("/{id}/enrichment", ws.getEnrichment)
		})
		r.Get("/screenshots/{id}", ws.getScreenshot)
		r.Get("/linkedin-images/{id}/{filename}", ws.getLinkedInImage)
	})
}

// StartServer serves handler on addr until ctx is cancelled, then shuts the
// server down gracefully.
func StartServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting web server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "web server listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "web server shutdown")
	}
	return nil
}
