package rooms

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/slotshare/core/audit"
	"github.com/kilianp07/slotshare/core/commit"
	"github.com/kilianp07/slotshare/core/coordinator"
	"github.com/kilianp07/slotshare/core/exchange"
	"github.com/kilianp07/slotshare/core/logger"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
	"github.com/kilianp07/slotshare/core/travel"
)

// Handler serves the room routes.
type Handler struct {
	svc       *coordinator.Service
	exchanges *exchange.Resolver
	committer *commit.Committer
	store     store.ExchangeStore
	audit     audit.Querier
	log       logger.Logger
}

// NewHandler returns a Handler. entries may be nil when the audit log cannot be queried.
func NewHandler(svc *coordinator.Service, ex *exchange.Resolver, c *commit.Committer, st store.ExchangeStore, entries audit.Querier, log logger.Logger) *Handler {
	return &Handler{svc: svc, exchanges: ex, committer: c, store: st, audit: entries, log: logger.OrNop(log)}
}

func actor(r *http.Request) string { return r.Header.Get(ActorHeader) }

// participant loads the room and checks that the caller belongs to it.
// ownerOnly restricts the check to the room owner.
func (h *Handler) participant(ctx context.Context, roomID, actorID string, ownerOnly bool) (model.Room, error) {
	room, err := h.svc.Room(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}
	if actorID == "" {
		vErr := &model.ValidationError{}
		vErr.Add(ActorHeader, "required")
		return model.Room{}, vErr
	}
	if (ownerOnly && actorID != room.OwnerID) || !room.IsParticipant(actorID) {
		return model.Room{}, fmt.Errorf("%w: %s", model.ErrNotParticipant, actorID)
	}
	return room, nil
}

// GetRoom returns the room document.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.participant(r.Context(), chi.URLParam(r, "roomID"), actor(r), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// Simulate checks a hypothetical slot.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.participant(r.Context(), roomID, actor(r), false); err != nil {
		h.fail(w, r, err)
		return
	}
	var p coordinator.SimulateParams
	if err := decode(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	p.RoomID = roomID
	res, err := h.svc.Simulate(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Allocate runs the allocator. Only the owner may store the result.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	var p coordinator.AllocateParams
	if err := decode(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.participant(r.Context(), roomID, actor(r), !p.DryRun); err != nil {
		h.fail(w, r, err)
		return
	}
	p.RoomID = roomID
	p.ActorID = actor(r)
	report, err := h.svc.Allocate(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type insertResponse struct {
	Slot   *model.Slot   `json:"slot,omitempty"`
	Result travel.Result `json:"result"`
}

// InsertSlot adds a manual slot. A slot refused by the simulator answers 422
// with the verdict.
func (h *Handler) InsertSlot(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.participant(r.Context(), roomID, actor(r), false); err != nil {
		h.fail(w, r, err)
		return
	}
	var p coordinator.InsertParams
	if err := decode(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	p.RoomID = roomID
	p.ActorID = actor(r)
	slot, res, err := h.svc.InsertSlot(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !res.IsValid {
		writeJSON(w, http.StatusUnprocessableEntity, insertResponse{Result: res})
		return
	}
	writeJSON(w, http.StatusCreated, insertResponse{Slot: &slot, Result: res})
}

// Confirm writes pending slots to calendars.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.participant(r.Context(), roomID, actor(r), true); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.committer.Confirm(r.Context(), roomID, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type autoConfirmRequest struct {
	Minutes int  `json:"minutes"`
	Disarm  bool `json:"disarm"`
}

// AutoConfirm arms or disarms the room's deadline.
func (h *Handler) AutoConfirm(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.participant(r.Context(), roomID, actor(r), true); err != nil {
		h.fail(w, r, err)
		return
	}
	var req autoConfirmRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Minutes < 0 {
		vErr := &model.ValidationError{}
		vErr.Add("minutes", "must not be negative")
		h.fail(w, r, vErr)
		return
	}
	var (
		room model.Room
		err  error
	)
	if req.Disarm {
		room, err = h.svc.DisarmAutoConfirm(r.Context(), roomID)
	} else {
		room, err = h.svc.ArmAutoConfirm(r.Context(), roomID, req.Minutes)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// Reset removes every slot and restores preferences.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.participant(r.Context(), roomID, actor(r), true); err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.svc.ResetSlots(r.Context(), roomID, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// UpdatePreferences replaces a member's availability. Members edit their own
// preferences; the owner may edit anyone's.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	roomID, memberID := chi.URLParam(r, "roomID"), chi.URLParam(r, "memberID")
	room, err := h.participant(r.Context(), roomID, actor(r), false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if actor(r) != memberID && actor(r) != room.OwnerID {
		h.fail(w, r, fmt.Errorf("%w: %s", model.ErrNotParticipant, actor(r)))
		return
	}
	var u coordinator.PreferencesUpdate
	if err := decode(r, &u); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.svc.UpdatePreferences(r.Context(), roomID, memberID, u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Audit lists the room's audit entries.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if _, err := h.participant(r.Context(), roomID, actor(r), false); err != nil {
		h.fail(w, r, err)
		return
	}
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}
	entries, err := h.audit.Entries(r.Context(), roomID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
