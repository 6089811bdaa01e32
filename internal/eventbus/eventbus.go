package eventbus

import (
	"slices"

	"github.com/kilianp07/slotshare/core/events"
)

// RoomBus carries room notifications.
type RoomBus = TypedBus[events.RoomEvent]

var _ events.Publisher = (*RoomBus)(nil)

// NewRoomBus creates a RoomBus.
func NewRoomBus(buffer ...int) *RoomBus { return NewTyped[events.RoomEvent](buffer...) }

// ForRoom accepts the events of one room.
func ForRoom(roomID string) func(events.RoomEvent) bool {
	return func(e events.RoomEvent) bool { return e.RoomID == roomID }
}

// ForMember accepts the events addressed to memberID, including broadcasts.
func ForMember(memberID string) func(events.RoomEvent) bool {
	return func(e events.RoomEvent) bool {
		return len(e.Recipients) == 0 || slices.Contains(e.Recipients, memberID)
	}
}

// Named accepts the events whose name is one of names.
func Named(names ...string) func(events.RoomEvent) bool {
	return func(e events.RoomEvent) bool { return slices.Contains(names, e.Name) }
}
