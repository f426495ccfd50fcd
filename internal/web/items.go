package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prismfeed/prism/internal/store"
)

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ItemFilter{
		FeedID:         int64(queryInt(r, "feed_id", 0)),
		SentimentLabel: q.Get("sentiment"),
		Limit:          queryInt(r, "limit", 50),
		Offset:         queryInt(r, "offset", 0),
		SortDesc:       q.Get("sort") != "asc",
	}
	if hours := queryInt(r, "since_hours", 0); hours > 0 {
		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		filter.Since = &since
	}
	if raw := q.Get("impact_min"); raw != "" {
		min, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			filter.ImpactMin = min
		}
	}
	if raw := q.Get("has_analysis"); raw != "" {
		has := raw == "true"
		filter.HasAnalysis = &has
	}

	items, err := s.store.Items.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := s.store.Items.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGetItemAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.Items.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	analysis, err := s.store.Analyses.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis.Payload())
}
