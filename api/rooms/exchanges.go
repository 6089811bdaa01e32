package rooms

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/slotshare/core/exchange"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
)

// ListExchanges returns the room's requests, oldest first.
func (h *Handler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.participant(r.Context(), roomID, actor(r), false); err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.store.ListExchanges(r.Context(), roomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.ExchangeRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateExchange files a request on behalf of the caller.
func (h *Handler) CreateExchange(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.participant(r.Context(), roomID, actor(r), false); err != nil {
		h.fail(w, r, err)
		return
	}
	var p exchange.CreateParams
	if err := decode(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	p.RoomID = roomID
	p.RequesterID = actor(r)
	req, err := h.exchanges.Create(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

type decision struct {
	Approve bool `json:"approve"`
	Proceed bool `json:"proceed"`
}

// inRoom checks that the request in the path belongs to the room in the path.
func (h *Handler) inRoom(r *http.Request) error {
	req, err := h.store.GetExchange(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	if req.RoomID != chi.URLParam(r, "roomID") {
		return fmt.Errorf("exchange %s: %w", req.ID, store.ErrNotFound)
	}
	return nil
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, apply func(d decision) (model.ExchangeRequest, error)) {
	if err := h.inRoom(r); err != nil {
		h.fail(w, r, err)
		return
	}
	var d decision
	if r.ContentLength != 0 {
		if err := decode(r, &d); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	req, err := apply(d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// RespondExchange records the target's decision.
func (h *Handler) RespondExchange(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(d decision) (model.ExchangeRequest, error) {
		return h.exchanges.Respond(r.Context(), chi.URLParam(r, "id"), actor(r), d.Approve)
	})
}

// ConfirmChain records the requester's decision on a proposed chain.
func (h *Handler) ConfirmChain(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(d decision) (model.ExchangeRequest, error) {
		return h.exchanges.ConfirmChain(r.Context(), chi.URLParam(r, "id"), actor(r), d.Proceed)
	})
}

// CancelExchange withdraws a request.
func (h *Handler) CancelExchange(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(decision) (model.ExchangeRequest, error) {
		return h.exchanges.Cancel(r.Context(), chi.URLParam(r, "id"), actor(r))
	})
}
