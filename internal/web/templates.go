package web

import (
	"net/http"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/pkg/models"
)

func validateTemplate(tmpl *models.Template) error {
	if tmpl.Name == "" {
		return apperr.New(apperr.KindValidation, "template name is required")
	}
	for field, sel := range tmpl.Selectors {
		switch field {
		case models.FieldTitle, models.FieldLink, models.FieldContent, models.FieldAuthor, models.FieldPublished:
		default:
			return apperr.New(apperr.KindValidation, "unknown selector field %q", field)
		}
		switch sel.Kind {
		case models.SelectorCSS, models.SelectorXPath, models.SelectorAttribute, models.SelectorLiteral:
		default:
			return apperr.New(apperr.KindValidation, "unknown selector kind %q for field %q", sel.Kind, field)
		}
	}
	for _, rule := range tmpl.MatchRules {
		switch rule.Kind {
		case models.MatchDomainEquals, models.MatchURLRegex, models.MatchContentType:
		default:
			return apperr.New(apperr.KindValidation, "unknown match rule kind %q", rule.Kind)
		}
	}
	return nil
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.Templates.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates, "count": len(templates)})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl models.Template
	if err := decode(w, r, &tmpl); err != nil {
		writeError(w, err)
		return
	}
	if err := validateTemplate(&tmpl); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.Templates.Create(r.Context(), &tmpl); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tmpl, err := s.store.Templates.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var tmpl models.Template
	if err := decode(w, r, &tmpl); err != nil {
		writeError(w, err)
		return
	}
	if err := validateTemplate(&tmpl); err != nil {
		writeError(w, err)
		return
	}
	tmpl.ID = id
	if err := s.store.Templates.Update(r.Context(), &tmpl); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.Templates.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
