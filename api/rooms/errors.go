package rooms

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/slotshare/core/commit"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/monitoring"
	"github.com/kilianp07/slotshare/core/store"
)

type errorBody struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrRetriesExhausted):
		return http.StatusConflict
	case errors.Is(err, commit.ErrCommitFailed):
		return http.StatusServiceUnavailable
	}
	switch model.ErrorKind(err) {
	case "validation", "invalid_time", "invalid_date", "invalid_range":
		return http.StatusBadRequest
	case "unknown_member", "unknown_slot":
		return http.StatusNotFound
	case "not_participant":
		return http.StatusForbidden
	case "invalid_transition":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	body := errorBody{Error: err.Error(), Kind: model.ErrorKind(err)}
	var vErr *model.ValidationError
	if errors.As(err, &vErr) {
		body.Fields = vErr.FieldErrors
	}
	if status >= http.StatusInternalServerError {
		h.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		monitoring.CaptureException(err, map[string]string{
			"route":   route,
			"room_id": chi.URLParam(r, "roomID"),
			"kind":    body.Kind,
		})
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		vErr := &model.ValidationError{}
		vErr.Add("body", err.Error())
		return vErr
	}
	return nil
}
