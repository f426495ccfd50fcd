package web

import (
	"net/http"

	"github.com/prismfeed/prism/internal/governor"
	"github.com/prismfeed/prism/internal/orchestrator"
	"github.com/prismfeed/prism/pkg/models"
)

type previewRequest struct {
	Scope  models.Scope     `json:"scope"`
	Params models.RunParams `json:"params"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	preview, err := s.orch.Preview(r.Context(), req.Scope, req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req models.RunCreateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Trigger == "" {
		req.Trigger = models.TriggerAPI
	}
	decision, err := s.governor.RequestRun(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if decision.Status == "queued" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, decision)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	limit := queryInt(r, "limit", 50)
	runs, err := s.store.Runs.ListRuns(r.Context(), activeOnly, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.Runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.governor.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "cancelled": true})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	s.governor.Halt()
	writeJSON(w, http.StatusOK, map[string]any{"halted": true})
}

func (s *Server) handleManagerResume(w http.ResponseWriter, r *http.Request) {
	if err := s.governor.Resume(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"halted": false})
}

func (s *Server) handleManagerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.governor.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, managerStatus{
		Status:   status,
		Pipeline: s.orch.Pipeline(),
	})
}

// managerStatus flattens the governor snapshot and nests the pacing layers.
type managerStatus struct {
	*governor.Status
	Pipeline orchestrator.PipelineStats `json:"pipeline"`
}
