package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
)

// ConfirmChain is the chain head's decision on a request that needs a chain.
// Proceeding asks the first candidate; cancelling rejects the request and
// leaves every slot untouched.
func (r *Resolver) ConfirmChain(ctx context.Context, requestID, actorID string, proceed bool) (model.ExchangeRequest, error) {
	root, err := r.store.GetExchange(ctx, requestID)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("load request: %w", err)
	}
	if root.Status.Terminal() {
		return root, nil
	}
	if root.RequesterID != actorID || root.Type == model.ExchangeChainRequest {
		return model.ExchangeRequest{}, fmt.Errorf("%w: %s", model.ErrNotParticipant, actorID)
	}
	if root.Status != model.StatusNeedsChainConfirmation || root.Chain == nil {
		return model.ExchangeRequest{}, fmt.Errorf("%w: request is %s", model.ErrInvalidTransition, root.Status)
	}
	if !proceed {
		return r.finish(ctx, root, model.StatusRejected, "chain cancelled by requester", actorID)
	}

	child, err := r.ask(ctx, root)
	if err != nil {
		return model.ExchangeRequest{}, err
	}
	root.Chain.LastHop().RequestID = child.ID
	if err := root.Transition(model.StatusWaitingForChain, "waiting for "+child.TargetMemberID, r.now().UTC()); err != nil {
		return model.ExchangeRequest{}, err
	}
	saved, err := r.store.SaveExchange(ctx, root)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("save request: %w", err)
	}
	r.record(ctx, saved, actorID, "chain started")
	r.notify(saved, saved.RequesterID)
	return saved, nil
}

// ask creates the chain-request addressed to the current candidate of root.
func (r *Resolver) ask(ctx context.Context, root model.ExchangeRequest) (model.ExchangeRequest, error) {
	now := r.now().UTC()
	child, err := r.store.SaveExchange(ctx, model.ExchangeRequest{
		ID:             r.newID(),
		RoomID:         root.RoomID,
		Type:           model.ExchangeChainRequest,
		RequesterID:    root.RequesterID,
		TargetMemberID: root.Chain.CandidateID,
		TargetSlotID:   root.Chain.CandidateSlotID,
		Status:         model.StatusPending,
		RootID:         root.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("save chain request: %w", err)
	}
	r.notify(child, child.TargetMemberID)
	return child, nil
}

// chainMoves returns the slot reassignments of root's chain and the occupant
// each slot must still have. Only the first n hops are included.
func chainMoves(root model.ExchangeRequest, n int) (moves, owners map[string]string) {
	hops := root.Chain.Hops
	moves = map[string]string{root.TargetSlotID: root.RequesterID}
	owners = map[string]string{root.TargetSlotID: root.TargetMemberID}
	for i, h := range hops[:n] {
		moves[h.ToSlotID] = h.MemberID
		if i+1 < len(hops) {
			owners[h.ToSlotID] = hops[i+1].MemberID
		} else {
			owners[h.ToSlotID] = root.Chain.CandidateID
		}
	}
	return moves, owners
}

// respondChain handles a candidate's answer to a chain-request.
func (r *Resolver) respondChain(ctx context.Context, child model.ExchangeRequest, approve bool) (model.ExchangeRequest, error) {
	root, err := r.store.GetExchange(ctx, child.RootID)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("load chain root: %w", err)
	}
	if root.Status != model.StatusWaitingForChain || root.Chain == nil || root.Chain.LastHop().RequestID != child.ID {
		return r.finish(ctx, child, model.StatusRejected, "chain is no longer open", child.TargetMemberID)
	}
	actor := child.TargetMemberID

	if !approve {
		child, err = r.finish(ctx, child, model.StatusRejected, "declined by candidate", actor)
		if err != nil {
			return model.ExchangeRequest{}, err
		}
		root.Chain.Tried = append(root.Chain.Tried, actor)
		if err := r.retarget(ctx, root, actor+" declined"); err != nil {
			return model.ExchangeRequest{}, err
		}
		return child, nil
	}

	room, members, err := r.load(ctx, root.RoomID)
	if err != nil {
		return model.ExchangeRequest{}, err
	}
	lost, ok := room.Slot(root.Chain.CandidateSlotID)
	if !ok || lost.MemberID != actor {
		return r.fail(ctx, root, child, "slots changed while the chain was open")
	}
	moves, owners := chainMoves(root, len(root.Chain.Hops))
	view := withMoves(room, moves)

	if dest, ok := r.destination(view, members, actor, *lost); ok {
		err := r.commit(ctx, root.RoomID, moves, owners, &dest)
		if errors.Is(err, errStale) {
			return r.fail(ctx, root, child, err.Error())
		}
		if err != nil {
			return model.ExchangeRequest{}, err
		}
		closed, err := r.closeChain(ctx, &root, model.StatusApproved, "")
		if err != nil {
			return model.ExchangeRequest{}, err
		}
		if _, err := r.finish(ctx, root, model.StatusApproved, fmt.Sprintf("resolved in %d hops", len(root.Chain.Hops)), actor); err != nil {
			return model.ExchangeRequest{}, err
		}
		return closed[child.ID], nil
	}

	if len(root.Chain.Hops) >= r.cfg.MaxHops {
		return r.fail(ctx, root, child, fmt.Sprintf("no free slot found within %d hops", r.cfg.MaxHops))
	}
	root.Chain.Visited = append(root.Chain.Visited, actor)
	next, ok := r.nextCandidate(view, members, actor, *lost, root.Chain.Excluded())
	if !ok {
		return r.fail(ctx, root, child, actor+" has no free slot and nobody else can make room")
	}

	if err := child.Transition(model.StatusWaitingForChain, "waiting for "+next.MemberID, r.now().UTC()); err != nil {
		return model.ExchangeRequest{}, err
	}
	child, err = r.store.SaveExchange(ctx, child)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("save chain request: %w", err)
	}
	r.notify(child, child.TargetMemberID)

	root.Chain.Hops = append(root.Chain.Hops, model.ChainHop{MemberID: actor, FromSlotID: lost.ID, ToSlotID: next.ID})
	root.Chain.CandidateID = next.MemberID
	root.Chain.CandidateSlotID = next.ID
	root.Chain.Depth = len(root.Chain.Hops)
	asked, err := r.ask(ctx, root)
	if err != nil {
		return model.ExchangeRequest{}, err
	}
	root.Chain.LastHop().RequestID = asked.ID
	root.UpdatedAt = r.now().UTC()
	if _, err := r.store.SaveExchange(ctx, root); err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("save request: %w", err)
	}
	r.record(ctx, root, actor, fmt.Sprintf("chain extended to %s", next.MemberID))
	return child, nil
}

// retarget proposes another candidate for the member waiting on the last hop
// after the previous candidate declined. Without one the chain is rejected.
func (r *Resolver) retarget(ctx context.Context, root model.ExchangeRequest, why string) error {
	room, members, err := r.load(ctx, root.RoomID)
	if err != nil {
		return err
	}
	hop := root.Chain.LastHop()
	moves, _ := chainMoves(root, len(root.Chain.Hops)-1)
	view := withMoves(room, moves)
	lost, ok := room.Slot(hop.FromSlotID)
	if !ok {
		_, err := r.rejectChain(ctx, root, why+"; slots changed while the chain was open")
		return err
	}
	next, ok := r.nextCandidate(view, members, hop.MemberID, *lost, root.Chain.Excluded())
	if !ok {
		_, err := r.rejectChain(ctx, root, why+"; no other member can make room")
		return err
	}
	hop.ToSlotID = next.ID
	root.Chain.CandidateID = next.MemberID
	root.Chain.CandidateSlotID = next.ID
	asked, err := r.ask(ctx, root)
	if err != nil {
		return err
	}
	root.Chain.LastHop().RequestID = asked.ID
	root.UpdatedAt = r.now().UTC()
	if _, err := r.store.SaveExchange(ctx, root); err != nil {
		return fmt.Errorf("save request: %w", err)
	}
	return nil
}

// fail rejects the whole chain and returns the answered child in its final state.
func (r *Resolver) fail(ctx context.Context, root, child model.ExchangeRequest, reason string) (model.ExchangeRequest, error) {
	closed, err := r.rejectChain(ctx, root, reason)
	if err != nil {
		return model.ExchangeRequest{}, err
	}
	if c, ok := closed[child.ID]; ok {
		return c, nil
	}
	return r.store.GetExchange(ctx, child.ID)
}

// rejectChain rejects root and every open hop, notifying the chain head.
func (r *Resolver) rejectChain(ctx context.Context, root model.ExchangeRequest, reason string) (map[string]model.ExchangeRequest, error) {
	closed, err := r.closeChain(ctx, &root, model.StatusRejected, reason)
	if err != nil {
		return nil, err
	}
	if _, err := r.finish(ctx, root, model.StatusRejected, reason, root.RequesterID); err != nil {
		return nil, err
	}
	return closed, nil
}

// closeChain moves every open chain-request of root to status.
func (r *Resolver) closeChain(ctx context.Context, root *model.ExchangeRequest, status model.ExchangeStatus, reason string) (map[string]model.ExchangeRequest, error) {
	closed := map[string]model.ExchangeRequest{}
	if root.Chain == nil {
		return closed, nil
	}
	for _, hop := range root.Chain.Hops {
		if hop.RequestID == "" {
			continue
		}
		changed := false
		c, err := store.UpdateExchange(ctx, r.store, r.retry, hop.RequestID, func(child *model.ExchangeRequest) error {
			changed = false
			if child.Status.Terminal() {
				return nil
			}
			changed = true
			return child.Transition(status, reason, r.now().UTC())
		})
		if err != nil {
			return nil, fmt.Errorf("close chain request %s: %w", hop.RequestID, err)
		}
		closed[c.ID] = c
		if changed {
			r.notify(c, c.TargetMemberID)
		}
	}
	return closed, nil
}
