package web

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/pkg/models"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindValidation, "invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

type feedRequest struct {
	URL             string `json:"url"`
	Title           string `json:"title"`
	IntervalMinutes int    `json:"interval_minutes"`
	AutoAnalyze     bool   `json:"auto_analyze"`
	TemplateID      *int64 `json:"template_id"`
}

func (fr *feedRequest) validate() error {
	parsed, err := url.Parse(fr.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return apperr.New(apperr.KindValidation, "url must be an absolute http(s) URL")
	}
	if fr.IntervalMinutes != 0 &&
		(fr.IntervalMinutes < models.MinFetchIntervalMinutes || fr.IntervalMinutes > models.MaxFetchIntervalMinutes) {
		return apperr.New(apperr.KindValidation, "interval_minutes must be %d..%d",
			models.MinFetchIntervalMinutes, models.MaxFetchIntervalMinutes)
	}
	return nil
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	status := models.FeedStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	feeds, err := s.store.Feeds.List(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": feeds, "count": len(feeds)})
}

func (s *Server) handleCreateFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	interval := req.IntervalMinutes
	if interval == 0 {
		interval = 30
	}
	feed := &models.Feed{
		URL:             req.URL,
		Title:           req.Title,
		Status:          models.FeedActive,
		IntervalMinutes: interval,
		AutoAnalyze:     req.AutoAnalyze,
		TemplateID:      req.TemplateID,
	}
	if err := s.store.Feeds.Create(r.Context(), feed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, feed)
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	feed, err := s.store.Feeds.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req feedRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	feed, err := s.store.Feeds.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	feed.URL = req.URL
	feed.Title = req.Title
	if req.IntervalMinutes != 0 {
		feed.IntervalMinutes = req.IntervalMinutes
	}
	feed.AutoAnalyze = req.AutoAnalyze
	feed.TemplateID = req.TemplateID
	if err := s.store.Feeds.Update(r.Context(), feed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.Feeds.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleFetchFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := s.scheduler.ManualFetch(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handlePauseFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.scheduler.Pause(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed_id": id, "status": models.FeedPaused})
}

func (s *Server) handleResumeFeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.scheduler.Resume(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed_id": id, "status": models.FeedActive})
}

func (s *Server) handleFeedHealth(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	health, err := s.store.Health.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleFeedFetchLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := queryInt(r, "limit", 50)
	entries, err := s.store.FetchLogs.ListByFeed(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleGetFeedLimits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limits, err := s.store.Limits.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (s *Server) handlePutFeedLimits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.Feeds.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	var limits models.FeedLimits
	if err := decode(w, r, &limits); err != nil {
		writeError(w, err)
		return
	}
	if limits.MaxDailyAnalyses < 0 || limits.MaxDailyCostUSD < 0 || limits.MaxMonthlyCostUSD < 0 {
		writeError(w, apperr.New(apperr.KindValidation, "limits must be non-negative"))
		return
	}
	limits.FeedID = id
	if err := s.store.Limits.Upsert(r.Context(), &limits); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}
