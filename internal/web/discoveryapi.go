package web

import "net/http"

func (s *Server) handleDiscoverySchemas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"names":   s.discovery.SchemaNames(),
		"schemas": s.discovery.Schemas(),
	})
}

func (s *Server) handleDiscoverySchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.discovery.Schema(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (s *Server) handleDiscoveryExample(w http.ResponseWriter, r *http.Request) {
	example, err := s.discovery.Example(r.Context(), r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, example)
}

func (s *Server) handleDiscoveryGuide(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.discovery.Guide())
}

func (s *Server) handleDiscoveryFeatures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"features": s.discovery.Features()})
}
