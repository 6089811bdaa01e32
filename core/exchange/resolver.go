// Package exchange resolves slot exchange requests. A direct request asks a
// target to hand over a slot; when the target has nowhere else to go the
// request grows into a chain of relocations where every displaced member must
// approve their own hop. All chain state lives on the persisted root request
// so any hop can resume after a restart.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/slotshare/core/audit"
	"github.com/kilianp07/slotshare/core/events"
	"github.com/kilianp07/slotshare/core/logger"
	"github.com/kilianp07/slotshare/core/metrics"
	"github.com/kilianp07/slotshare/core/model"
	"github.com/kilianp07/slotshare/core/store"
	"github.com/kilianp07/slotshare/core/travel"
)

// errStale aborts a commit when the slots moved since the decision was computed.
var errStale = errors.New("slots changed while the request was open")

// Config bounds chain resolution.
type Config struct {
	// MaxHops is the maximum number of relocations in one chain.
	MaxHops int `json:"max_hops"`
	// SlotMinutes is the placement granularity when the room sets none.
	SlotMinutes int `json:"slot_minutes"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxHops <= 0 {
		c.MaxHops = 3
	}
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = 30
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.MaxHops < 1 || c.MaxHops > 10 {
		return fmt.Errorf("max_hops must be between 1 and 10")
	}
	return nil
}

// Resolver drives exchange requests through their lifecycle.
type Resolver struct {
	cfg   Config
	store store.Store
	sim   *travel.Simulator
	bus   events.Publisher
	audit audit.Log
	sink  metrics.Sink
	log   logger.Logger
	retry store.RetryPolicy
	now   func() time.Time
	newID func() string
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithPublisher sets the notification bus.
func WithPublisher(p events.Publisher) Option { return func(r *Resolver) { r.bus = p } }

// WithAudit sets the audit log.
func WithAudit(l audit.Log) Option { return func(r *Resolver) { r.audit = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(s metrics.Sink) Option { return func(r *Resolver) { r.sink = s } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(r *Resolver) { r.log = l } }

// WithRetry sets the optimistic update policy.
func WithRetry(p store.RetryPolicy) Option { return func(r *Resolver) { r.retry = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

// WithIDs overrides the id generator.
func WithIDs(f func() string) Option { return func(r *Resolver) { r.newID = f } }

// New returns a Resolver backed by st.
func New(cfg Config, st store.Store, sim *travel.Simulator, opts ...Option) *Resolver {
	cfg.SetDefaults()
	r := &Resolver{
		cfg:   cfg,
		store: st,
		sim:   sim,
		bus:   events.NopPublisher{},
		sink:  metrics.NopSink{},
		log:   logger.NopLogger{},
		retry: store.DefaultRetryPolicy,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	r.log = logger.OrNop(r.log)
	r.sink = metrics.OrNop(r.sink)
	return r
}

// CreateParams describes a user initiated request.
type CreateParams struct {
	RoomID          string `json:"room_id"`
	RequesterID     string `json:"requester_id"`
	Type            string `json:"type"`
	TargetSlotID    string `json:"target_slot_id"`
	RequesterSlotID string `json:"requester_slot_id,omitempty"`
}

// Create validates and stores a new request. Releases are applied at once.
func (r *Resolver) Create(ctx context.Context, p CreateParams) (model.ExchangeRequest, error) {
	vErr := &model.ValidationError{}
	typ, err := model.ParseExchangeType(p.Type)
	if err != nil {
		vErr.Add("type", err.Error())
	} else if typ == model.ExchangeChainRequest {
		vErr.Add("type", "chain requests are created by the resolver")
	}
	if p.RoomID == "" {
		vErr.Add("room_id", "required")
	}
	if p.RequesterID == "" {
		vErr.Add("requester_id", "required")
	}
	if p.TargetSlotID == "" {
		vErr.Add("target_slot_id", "required")
	}
	if typ == model.ExchangeSlotSwap && p.RequesterSlotID == "" {
		vErr.Add("requester_slot_id", "required for slot-swap")
	}
	if err := vErr.Err(); err != nil {
		return model.ExchangeRequest{}, err
	}

	room, err := r.store.GetRoom(ctx, p.RoomID)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("load room: %w", err)
	}
	if !room.IsParticipant(p.RequesterID) {
		return model.ExchangeRequest{}, fmt.Errorf("%w: %s", model.ErrUnknownMember, p.RequesterID)
	}
	target, ok := room.Slot(p.TargetSlotID)
	if !ok || target.Kind != model.SlotClass {
		return model.ExchangeRequest{}, fmt.Errorf("%w: %s", model.ErrUnknownSlot, p.TargetSlotID)
	}

	now := r.now().UTC()
	req := model.ExchangeRequest{
		ID:             r.newID(),
		RoomID:         room.ID,
		Type:           typ,
		RequesterID:    p.RequesterID,
		TargetMemberID: target.MemberID,
		TargetSlotID:   target.ID,
		Status:         model.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch typ {
	case model.ExchangeSlotRequest:
		if target.MemberID == p.RequesterID {
			return model.ExchangeRequest{}, &model.ValidationError{FieldErrors: map[string]string{"target_slot_id": "slot already belongs to the requester"}}
		}
	case model.ExchangeSlotSwap:
		own, ok := room.Slot(p.RequesterSlotID)
		if !ok || own.MemberID != p.RequesterID {
			return model.ExchangeRequest{}, fmt.Errorf("%w: %s is not a slot of %s", model.ErrUnknownSlot, p.RequesterSlotID, p.RequesterID)
		}
		if target.MemberID == p.RequesterID {
			return model.ExchangeRequest{}, &model.ValidationError{FieldErrors: map[string]string{"target_slot_id": "cannot swap with an own slot"}}
		}
		req.RequesterSlotID = own.ID
	case model.ExchangeSlotRelease:
		if target.MemberID != p.RequesterID {
			return model.ExchangeRequest{}, fmt.Errorf("%w: only the occupant may release a slot", model.ErrNotParticipant)
		}
		return r.release(ctx, req, *target)
	}

	saved, err := r.store.SaveExchange(ctx, req)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("save request: %w", err)
	}
	r.notify(saved, saved.TargetMemberID)
	return saved, nil
}

// release frees the slot and gives its range back to the occupant's preferences.
func (r *Resolver) release(ctx context.Context, req model.ExchangeRequest, slot model.Slot) (model.ExchangeRequest, error) {
	_, err := store.UpdateRoom(ctx, r.store, r.retry, req.RoomID, func(room *model.Room) error {
		cur, ok := room.Slot(slot.ID)
		if !ok || cur.MemberID != slot.MemberID {
			return errStale
		}
		room.RemoveSlot(slot.ID)
		return nil
	})
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("release slot: %w", err)
	}
	if err := r.applyPreferences(ctx, req.RoomID, delta{lost: map[string][]model.Slot{slot.MemberID: {slot}}}); err != nil {
		return model.ExchangeRequest{}, err
	}
	if err := req.Transition(model.StatusApproved, "released", r.now().UTC()); err != nil {
		return model.ExchangeRequest{}, err
	}
	saved, err := r.store.SaveExchange(ctx, req)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("save request: %w", err)
	}
	r.record(ctx, saved, saved.RequesterID, fmt.Sprintf("released %s %s", slot.Date, slot.Interval()))
	r.notify(saved)
	return saved, nil
}

// Cancel lets the requester withdraw an open request. Cancelling a chain
// collapses the root and every open hop to rejected.
func (r *Resolver) Cancel(ctx context.Context, requestID, actorID string) (model.ExchangeRequest, error) {
	req, err := r.store.GetExchange(ctx, requestID)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("load request: %w", err)
	}
	if req.Status.Terminal() {
		return req, nil
	}
	if req.RequesterID != actorID || req.Type == model.ExchangeChainRequest {
		return model.ExchangeRequest{}, fmt.Errorf("%w: %s", model.ErrNotParticipant, actorID)
	}
	if req.Chain == nil {
		return r.finish(ctx, req, model.StatusCancelled, "cancelled by requester", actorID)
	}
	const reason = "chain cancelled by requester"
	if _, err := r.closeChain(ctx, &req, model.StatusRejected, reason); err != nil {
		return model.ExchangeRequest{}, err
	}
	return r.finish(ctx, req, model.StatusRejected, reason, actorID)
}

// finish moves req to a terminal status, saves it and reports it.
func (r *Resolver) finish(ctx context.Context, req model.ExchangeRequest, status model.ExchangeStatus, reason, actorID string) (model.ExchangeRequest, error) {
	if err := req.Transition(status, reason, r.now().UTC()); err != nil {
		return model.ExchangeRequest{}, err
	}
	saved, err := r.store.SaveExchange(ctx, req)
	if err != nil {
		return model.ExchangeRequest{}, fmt.Errorf("save request: %w", err)
	}
	msg := string(status)
	if reason != "" {
		msg += ": " + reason
	}
	r.record(ctx, saved, actorID, msg)
	r.notify(saved, saved.RequesterID, saved.TargetMemberID)
	return saved, nil
}

func (r *Resolver) notify(req model.ExchangeRequest, recipients ...string) {
	payload := map[string]any{
		"request_id": req.ID,
		"type":       string(req.Type),
		"status":     string(req.Status),
	}
	if req.Reason != "" {
		payload["reason"] = req.Reason
	}
	if req.RootID != "" {
		payload["root_id"] = req.RootID
	}
	r.bus.Publish(events.RoomEvent{
		RoomID:     req.RoomID,
		Name:       events.ExchangeRequestUpdated,
		Recipients: recipients,
		Payload:    payload,
		At:         r.now().UTC(),
	})
	hops := 0
	if req.Chain != nil {
		hops = len(req.Chain.Hops)
	}
	if err := metrics.RecordExchange(r.sink, metrics.ExchangeEvent{
		RoomID: req.RoomID, Type: string(req.Type), Status: string(req.Status), Hops: hops, Time: r.now(),
	}); err != nil {
		r.log.Warnf("record exchange metric: %v", err)
	}
}

func (r *Resolver) record(ctx context.Context, req model.ExchangeRequest, actorID, message string) {
	if r.audit == nil {
		return
	}
	name := actorID
	if m, err := r.store.GetMember(ctx, actorID); err == nil && m.Name != "" {
		name = m.Name
	}
	if err := r.audit.Append(ctx, audit.Entry{
		ID:        r.newID(),
		RoomID:    req.RoomID,
		ActorID:   actorID,
		ActorName: name,
		Action:    "exchange." + string(req.Type),
		Message:   fmt.Sprintf("request %s %s", req.ID, message),
		At:        r.now().UTC(),
	}); err != nil {
		r.log.Errorf("audit append: %v", err)
	}
}
