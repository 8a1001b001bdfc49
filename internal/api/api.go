// Package api exposes the session over a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"feeds_reader/internal/model"
	"feeds_reader/internal/schema"
	"feeds_reader/internal/search"
	"feeds_reader/internal/session"
)

// Session is the part of the session the API serves.
type Session interface {
	Subscriptions() []model.Subscription
	Subscribe(ctx context.Context, name, url string) (model.Subscription, error)
	Unsubscribe(ctx context.Context, name string) error
	FeedItems(ctx context.Context, name string, unreadOnly bool) ([]model.FeedItem, error)
	Item(ctx context.Context, id string) (model.FeedItem, string, error)
	MarkRead(ctx context.Context, id string) (model.FeedItem, error)
	MarkUnread(ctx context.Context, id string) (model.FeedItem, error)
	MarkDeleted(ctx context.Context, id string) (model.FeedItem, error)
	Restore(ctx context.Context, id string) (model.FeedItem, error)
	ToggleStar(ctx context.Context, id string) (model.FeedItem, error)
	MarkAllRead(ctx context.Context, name string) (int, error)
	Update(ctx context.Context, name string) (session.UpdateReport, error)
	UpdateAll(ctx context.Context) []session.UpdateReport
	Search(ctx context.Context, q, feed string) ([]search.Result, error)
	Stats(ctx context.Context) (session.Stats, error)
	ImportOPML(ctx context.Context, r io.Reader) (session.ImportResult, error)
	ExportOPML(w io.Writer) error
	Save(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	sess   Session
	router chi.Router
	log    *slog.Logger
}

// New creates a Server with its routes.
func New(sess Session, log *slog.Logger) *Server {
	s := &Server{sess: sess, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/feeds", s.handleFeeds)
		r.Post("/feeds", s.handleSubscribe)
		r.Delete("/feeds/{name}", s.handleUnsubscribe)
		r.Get("/feeds/{name}/items", s.handleFeedItems)
		r.Post("/feeds/{name}/update", s.handleUpdateFeed)
		r.Post("/feeds/{name}/read", s.handleMarkAllRead)
		r.Get("/items/{id}", s.handleItem)
		r.Post("/items/{id}/{action}", s.handleItemAction)
		r.Post("/update", s.handleUpdateAll)
		r.Get("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)
		r.Post("/save", s.handleSave)
		r.Get("/opml", s.handleExportOPML)
		r.Post("/opml", s.handleImportOPML)
	})

	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func param(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// fail maps session errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *schema.ValidationError
	switch {
	case errors.Is(err, session.ErrUnknownFeed), errors.Is(err, session.ErrUnknownItem):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrFeedExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, search.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: verr.Errors})
	default:
		s.log.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
