package events

import "time"

// Event names.
const (
	ScheduleConfirmed      = "schedule_confirmed"
	ExchangeRequestUpdated = "exchange_request_updated"
	AllocationCompleted    = "allocation_completed"
	CarryOverAdvisory      = "carry_over_advisory"
	AnalysisUpdated        = "analysis_updated"
	AutoConfirmArmed       = "auto_confirm_armed"
)

// RoomEvent is a named notification scoped to one room. Recipients lists the
// member ids the event is addressed to; an empty list means every participant.
type RoomEvent struct {
	RoomID     string         `json:"room_id"`
	Name       string         `json:"name"`
	Recipients []string       `json:"recipients,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	At         time.Time      `json:"at"`
}

// Publisher emits room events. internal/eventbus.TypedBus satisfies it.
type Publisher interface {
	Publish(RoomEvent)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(RoomEvent) {}
