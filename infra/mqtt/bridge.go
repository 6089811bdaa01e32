package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/slotshare/core/events"
	"github.com/kilianp07/slotshare/core/logger"
	"github.com/kilianp07/slotshare/internal/eventbus"
)

// Publisher sends raw payloads to a topic. PahoClient implements it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Bridge forwards room events from the bus to MQTT. Every event goes to
// {prefix}/{room}/events; addressed events are also copied to
// {prefix}/{room}/members/{member}/events.
type Bridge struct {
	pub    Publisher
	prefix string
	log    logger.Logger
}

// NewBridge returns a Bridge publishing under prefix.
func NewBridge(pub Publisher, prefix string, log logger.Logger) *Bridge {
	if prefix == "" {
		prefix = "rooms"
	}
	return &Bridge{pub: pub, prefix: prefix, log: logger.OrNop(log)}
}

// RoomTopic is the topic carrying every event of a room.
func (b *Bridge) RoomTopic(roomID string) string {
	return fmt.Sprintf("%s/%s/events", b.prefix, roomID)
}

// MemberTopic is the topic carrying the events addressed to one member.
func (b *Bridge) MemberTopic(roomID, memberID string) string {
	return fmt.Sprintf("%s/%s/members/%s/events", b.prefix, roomID, memberID)
}

// Forward publishes one event. Publishing stops at the first failure.
func (b *Bridge) Forward(ev events.RoomEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Name, err)
	}
	if err := b.pub.Publish(b.RoomTopic(ev.RoomID), payload); err != nil {
		return err
	}
	for _, m := range ev.Recipients {
		if err := b.pub.Publish(b.MemberTopic(ev.RoomID, m), payload); err != nil {
			return err
		}
	}
	return nil
}

// Run forwards bus events until ctx is canceled or the bus closes. Failed
// events are logged and dropped.
func (b *Bridge) Run(ctx context.Context, bus *eventbus.RoomBus) error {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if err := b.Forward(ev); err != nil {
				b.log.Errorf("forward %s for room %s: %v", ev.Name, ev.RoomID, err)
				continue
			}
			b.log.Debugw("event forwarded", map[string]any{"room_id": ev.RoomID, "event": ev.Name})
		}
	}
}
