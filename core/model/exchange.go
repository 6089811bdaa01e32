package model

import (
	"fmt"
	"slices"
	"time"
)

// ExchangeType identifies what an exchange request asks for.
type ExchangeType string

const (
	ExchangeSlotRequest  ExchangeType = "slot-request"
	ExchangeSlotSwap     ExchangeType = "slot-swap"
	ExchangeSlotRelease  ExchangeType = "slot-release"
	ExchangeChainRequest ExchangeType = "chain-request"
)

// ParseExchangeType validates s.
func ParseExchangeType(s string) (ExchangeType, error) {
	switch ExchangeType(s) {
	case ExchangeSlotRequest, ExchangeSlotSwap, ExchangeSlotRelease, ExchangeChainRequest:
		return ExchangeType(s), nil
	}
	return "", fmt.Errorf("unknown exchange type %q", s)
}

// ExchangeStatus is the lifecycle state of a request.
type ExchangeStatus string

const (
	StatusPending                ExchangeStatus = "pending"
	StatusNeedsChainConfirmation ExchangeStatus = "needs_chain_confirmation"
	StatusWaitingForChain        ExchangeStatus = "waiting_for_chain"
	StatusApproved               ExchangeStatus = "approved"
	StatusRejected               ExchangeStatus = "rejected"
	StatusCancelled              ExchangeStatus = "cancelled"
)

var exchangeTransitions = map[ExchangeStatus][]ExchangeStatus{
	StatusPending: {
		StatusApproved, StatusRejected, StatusNeedsChainConfirmation,
		StatusWaitingForChain, StatusCancelled,
	},
	StatusNeedsChainConfirmation: {StatusWaitingForChain, StatusApproved, StatusRejected, StatusCancelled},
	StatusWaitingForChain:        {StatusApproved, StatusRejected, StatusCancelled},
}

// Terminal reports whether no further transition is possible.
func (s ExchangeStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s ExchangeStatus) CanTransition(next ExchangeStatus) bool {
	return slices.Contains(exchangeTransitions[s], next)
}

// ChainHop is one relocation of a chain: MemberID leaves FromSlotID and takes ToSlotID.
type ChainHop struct {
	MemberID   string `json:"member_id"`
	FromSlotID string `json:"from_slot_id"`
	ToSlotID   string `json:"to_slot_id"`
	RequestID  string `json:"request_id,omitempty"`
}

// ChainData is the persisted state of a chain relocation.
type ChainData struct {
	Hops            []ChainHop `json:"hops"`
	CandidateID     string     `json:"candidate_id"`
	CandidateSlotID string     `json:"candidate_slot_id"`
	Tried           []string   `json:"tried"`
	Visited         []string   `json:"visited"`
	Depth           int        `json:"depth"`
}

// LastHop returns the hop that is still waiting for a destination.
func (c *ChainData) LastHop() *ChainHop {
	if len(c.Hops) == 0 {
		return nil
	}
	return &c.Hops[len(c.Hops)-1]
}

// Excluded returns every member that may not be proposed as the next candidate.
func (c *ChainData) Excluded() []string {
	out := append([]string(nil), c.Visited...)
	return append(out, c.Tried...)
}

// ExchangeRequest is a user initiated change to the room's slots.
type ExchangeRequest struct {
	ID              string         `json:"id"`
	RoomID          string         `json:"room_id"`
	Type            ExchangeType   `json:"type"`
	RequesterID     string         `json:"requester_id"`
	TargetMemberID  string         `json:"target_member_id"`
	TargetSlotID    string         `json:"target_slot_id"`
	RequesterSlotID string         `json:"requester_slot_id,omitempty"`
	Status          ExchangeStatus `json:"status"`
	Reason          string         `json:"reason,omitempty"`
	Chain           *ChainData     `json:"chain,omitempty"`
	RootID          string         `json:"root_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	Version         int64          `json:"version"`
}

// Transition moves the request to next, rejecting backward moves.
func (r *ExchangeRequest) Transition(next ExchangeStatus, reason string, now time.Time) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	if reason != "" {
		r.Reason = reason
	}
	r.UpdatedAt = now
	if next.Terminal() {
		at := now
		r.ResolvedAt = &at
	}
	return nil
}

// Involves reports whether memberID is the requester or the target.
func (r *ExchangeRequest) Involves(memberID string) bool {
	return r.RequesterID == memberID || r.TargetMemberID == memberID
}
