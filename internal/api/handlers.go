package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"feeds_reader/internal/model"
	"feeds_reader/internal/search"
	"feeds_reader/internal/session"
)

const maxOPMLBytes = 5 << 20

func (s *Server) handleFeeds(w http.ResponseWriter, _ *http.Request) {
	subs := s.sess.Subscriptions()
	if subs == nil {
		subs = []model.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}
	sub, err := s.sess.Subscribe(r.Context(), req.Name, req.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Unsubscribe(r.Context(), param(r, "name")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFeedItems(w http.ResponseWriter, r *http.Request) {
	unread := false
	switch r.URL.Query().Get("unread") {
	case "", "0", "false":
	case "1", "true":
		unread = true
	default:
		writeError(w, http.StatusBadRequest, "unread must be 0 or 1")
		return
	}
	items, err := s.sess.FeedItems(r.Context(), param(r, "name"), unread)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []model.FeedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type itemResponse struct {
	Feed string         `json:"feed"`
	Item model.FeedItem `json:"item"`
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	it, feed, err := s.sess.Item(r.Context(), param(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Feed: feed, Item: it})
}

func (s *Server) handleItemAction(w http.ResponseWriter, r *http.Request) {
	ctx, id := r.Context(), param(r, "id")
	var (
		it  model.FeedItem
		err error
	)
	switch action := param(r, "action"); action {
	case "read":
		it, err = s.sess.MarkRead(ctx, id)
	case "unread":
		it, err = s.sess.MarkUnread(ctx, id)
	case "delete":
		it, err = s.sess.MarkDeleted(ctx, id)
	case "restore":
		it, err = s.sess.Restore(ctx, id)
	case "star":
		it, err = s.sess.ToggleStar(ctx, id)
	default:
		writeError(w, http.StatusBadRequest, "unknown action "+action)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.sess.MarkAllRead(r.Context(), param(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

type updateResponse struct {
	session.UpdateReport
	Error string `json:"error,omitempty"`
}

func toUpdateResponse(rep session.UpdateReport) updateResponse {
	out := updateResponse{UpdateReport: rep}
	if rep.Err != nil {
		out.Error = rep.Err.Error()
	}
	return out
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	rep, err := s.sess.Update(r.Context(), param(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUpdateResponse(rep))
}

func (s *Server) handleUpdateAll(w http.ResponseWriter, r *http.Request) {
	reports := s.sess.UpdateAll(r.Context())
	out := make([]updateResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toUpdateResponse(rep))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	results, err := s.sess.Search(r.Context(), q, r.URL.Query().Get("feed"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.sess.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Save(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.sess.ExportOPML(&buf); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-opml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="feeds.opml"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	res, err := s.sess.ImportOPML(r.Context(), http.MaxBytesReader(w, r.Body, maxOPMLBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
