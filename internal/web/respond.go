package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/internal/store"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps an error chain onto the wire error shape. Store sentinels
// are translated so repositories never need to know about HTTP.
func writeError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
	case errors.Is(err, store.ErrNotFound):
		ae = apperr.New(apperr.KindNotFound, "resource not found")
	case errors.Is(err, store.ErrAlreadyExists):
		ae = apperr.New(apperr.KindConflict, "resource already exists")
	default:
		ae = apperr.New(apperr.KindInternal, "internal error")
	}
	writeJSON(w, apperr.HTTPStatus(ae.Kind), map[string]any{"error": ae})
}

// decode reads a JSON body into dst with a size cap.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(err, apperr.KindValidation, "invalid JSON body")
	}
	return nil
}
