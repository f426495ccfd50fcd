package web

import (
	"net/http"

	"github.com/prismfeed/prism/internal/apperr"
)

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	hb, err := s.scheduler.Heartbeat(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hb)
}

func (s *Server) handleSchedulerPause(w http.ResponseWriter, r *http.Request) {
	n, err := s.scheduler.PauseAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": n})
}

func (s *Server) handleSchedulerResume(w http.ResponseWriter, r *http.Request) {
	n, err := s.scheduler.ResumeAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resumed": n})
}

type intervalRequest struct {
	FeedID  int64 `json:"feed_id,omitempty"`
	Minutes int   `json:"minutes"`
}

// handleSchedulerInterval sets one feed's interval when feed_id is given,
// otherwise every feed's.
func (s *Server) handleSchedulerInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Minutes <= 0 {
		writeError(w, apperr.New(apperr.KindValidation, "minutes must be positive"))
		return
	}

	if req.FeedID > 0 {
		if err := s.scheduler.SetInterval(r.Context(), req.FeedID, req.Minutes); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"feed_id": req.FeedID, "interval_minutes": req.Minutes})
		return
	}

	n, err := s.scheduler.SetGlobalInterval(r.Context(), req.Minutes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": n, "interval_minutes": req.Minutes})
}
