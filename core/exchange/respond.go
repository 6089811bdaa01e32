package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/slotshare/core/model"
)

// Respond records the target's answer to a pending request. Answers to a
// request that is already closed are ignored and the stored request is returned.
func (r *Resolver) Respond(ctx context.Context, requestID, actorID string, approve bool) (model.ExchangeRequest, error) {
	req, err := r.store.GetExchange(ctx, requestID)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("load request: %w", err)
	}
	if req.Status.Terminal() {
		return req, nil
	}
	if req.TargetMemberID != actorID {
		return model.ExchangeRequest{}, fmt.Errorf("%w: %s", model.ErrNotParticipant, actorID)
	}
	if req.Status != model.StatusPending {
		return model.ExchangeRequest{}, fmt.Errorf("%w: request is %s", model.ErrInvalidTransition, req.Status)
	}
	if req.Type == model.ExchangeChainRequest {
		return r.respondChain(ctx, req, approve)
	}
	if !approve {
		return r.finish(ctx, req, model.StatusRejected, "declined by target", actorID)
	}
	if req.Type == model.ExchangeSlotSwap {
		return r.approveSwap(ctx, req)
	}
	return r.approveRequest(ctx, req)
}

func (r *Resolver) load(ctx context.Context, roomID string) (*model.Room, map[string]model.Member, error) {
	room, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("load room: %w", err)
	}
	members, err := r.store.GetMembers(ctx, room.MemberIDs())
	if err != nil {
		return nil, nil, fmt.Errorf("load members: %w", err)
	}
	return &room, members, nil
}

// approveRequest hands the target slot to the requester and moves the target
// somewhere else, directly or through a chain.
func (r *Resolver) approveRequest(ctx context.Context, req model.ExchangeRequest) (model.ExchangeRequest, error) {
	room, members, err := r.load(ctx, req.RoomID)
	if err != nil {
		return model.ExchangeRequest{}, err
	}
	slot, ok := room.Slot(req.TargetSlotID)
	if !ok || slot.MemberID != req.TargetMemberID {
		return r.finish(ctx, req, model.StatusRejected, "slot is no longer held by the target", req.TargetMemberID)
	}
	lost := *slot
	moves := map[string]string{lost.ID: req.RequesterID}
	view := withMoves(room, moves)
	if ok, reason := r.fits(view, members, req.RequesterID, lost); !ok {
		return r.finish(ctx, req, model.StatusRejected, "requester cannot take the slot: "+reason, req.TargetMemberID)
	}

	if dest, ok := r.destination(view, members, req.TargetMemberID, lost); ok {
		err := r.commit(ctx, req.RoomID, moves, map[string]string{lost.ID: req.TargetMemberID}, &dest)
		if errors.Is(err, errStale) {
			return r.finish(ctx, req, model.StatusRejected, err.Error(), req.TargetMemberID)
		}
		if err != nil {
			return model.ExchangeRequest{}, err
		}
		return r.finish(ctx, req, model.StatusApproved, "", req.TargetMemberID)
	}

	visited := []string{req.RequesterID, req.TargetMemberID}
	cand, ok := r.nextCandidate(view, members, req.TargetMemberID, lost, visited)
	if !ok {
		return r.finish(ctx, req, model.StatusRejected, "target has no free time left this week and nobody can make room", req.TargetMemberID)
	}
	req.Chain = &model.ChainData{
		Hops:            []model.ChainHop{{MemberID: req.TargetMemberID, FromSlotID: lost.ID, ToSlotID: cand.ID}},
		CandidateID:     cand.MemberID,
		CandidateSlotID: cand.ID,
		Visited:         visited,
		Depth:           1,
	}
	if err := req.Transition(model.StatusNeedsChainConfirmation, "target needs another member to make room", r.now().UTC()); err != nil {
		return model.ExchangeRequest{}, err
	}
	saved, err := r.store.SaveExchange(ctx, req)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("save request: %w", err)
	}
	r.record(ctx, saved, req.TargetMemberID, fmt.Sprintf("approved, chain candidate %s", cand.MemberID))
	r.notify(saved, saved.RequesterID)
	return saved, nil
}

// approveSwap exchanges the occupants of two slots when both members fit the other slot.
func (r *Resolver) approveSwap(ctx context.Context, req model.ExchangeRequest) (model.ExchangeRequest, error) {
	room, members, err := r.load(ctx, req.RoomID)
	if err != nil {
		return model.ExchangeRequest{}, err
	}
	mine, ok1 := room.Slot(req.RequesterSlotID)
	theirs, ok2 := room.Slot(req.TargetSlotID)
	if !ok1 || !ok2 || mine.MemberID != req.RequesterID || theirs.MemberID != req.TargetMemberID {
		return r.finish(ctx, req, model.StatusRejected, "slots changed since the request was made", req.TargetMemberID)
	}
	moves := map[string]string{mine.ID: req.TargetMemberID, theirs.ID: req.RequesterID}
	owners := map[string]string{mine.ID: req.RequesterID, theirs.ID: req.TargetMemberID}
	view := withMoves(room, moves)
	if ok, reason := r.fits(view, members, req.RequesterID, *theirs); !ok {
		return r.finish(ctx, req, model.StatusRejected, "requester cannot take the slot: "+reason, req.TargetMemberID)
	}
	if ok, reason := r.fits(view, members, req.TargetMemberID, *mine); !ok {
		return r.finish(ctx, req, model.StatusRejected, "target cannot take the offered slot: "+reason, req.TargetMemberID)
	}
	err = r.commit(ctx, req.RoomID, moves, owners, nil)
	if errors.Is(err, errStale) {
		return r.finish(ctx, req, model.StatusRejected, err.Error(), req.TargetMemberID)
	}
	if err != nil {
		return model.ExchangeRequest{}, err
	}
	return r.finish(ctx, req, model.StatusApproved, "", req.TargetMemberID)
}
