package metrics

import "time"

// AllocationEvent summarizes one allocation run.
type AllocationEvent struct {
	RoomID        string
	Mode          string
	DryRun        bool
	Slots         int
	AssignedHours float64
	Unassigned    int
	Duration      time.Duration
	Time          time.Time
}

// Sink records allocation runs. It is the minimum every sink implements.
type Sink interface {
	RecordAllocation(ev AllocationEvent) error
}

// SimulationEvent is the verdict of one travel simulation.
type SimulationEvent struct {
	RoomID string
	Valid  bool
	Code   string
	Time   time.Time
}

// SimulationRecorder records simulations.
type SimulationRecorder interface {
	RecordSimulation(ev SimulationEvent) error
}

// ExchangeEvent is a status change of an exchange request.
type ExchangeEvent struct {
	RoomID string
	Type   string
	Status string
	Hops   int
	Time   time.Time
}

// ExchangeRecorder records exchange transitions.
type ExchangeRecorder interface {
	RecordExchange(ev ExchangeEvent) error
}

// CommitEvent describes one confirmation call.
type CommitEvent struct {
	RoomID   string
	Blocks   int
	Skipped  bool
	Err      string
	Duration time.Duration
	Time     time.Time
}

// CommitRecorder records calendar commits.
type CommitRecorder interface {
	RecordCommit(ev CommitEvent) error
}

// NotificationEvent is a room event seen on the bus.
type NotificationEvent struct {
	RoomID string
	Name   string
	Time   time.Time
}

// NotificationRecorder records bus notifications.
type NotificationRecorder interface {
	RecordNotification(ev NotificationEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordAllocation(AllocationEvent) error     { return nil }
func (NopSink) RecordSimulation(SimulationEvent) error     { return nil }
func (NopSink) RecordExchange(ExchangeEvent) error         { return nil }
func (NopSink) RecordCommit(CommitEvent) error             { return nil }
func (NopSink) RecordNotification(NotificationEvent) error { return nil }

// RecordSimulation forwards ev when s supports simulations.
func RecordSimulation(s Sink, ev SimulationEvent) error {
	if r, ok := s.(SimulationRecorder); ok {
		return r.RecordSimulation(ev)
	}
	return nil
}

// RecordExchange forwards ev when s supports exchanges.
func RecordExchange(s Sink, ev ExchangeEvent) error {
	if r, ok := s.(ExchangeRecorder); ok {
		return r.RecordExchange(ev)
	}
	return nil
}

// RecordCommit forwards ev when s supports commits.
func RecordCommit(s Sink, ev CommitEvent) error {
	if r, ok := s.(CommitRecorder); ok {
		return r.RecordCommit(ev)
	}
	return nil
}

// RecordNotification forwards ev when s supports notifications.
func RecordNotification(s Sink, ev NotificationEvent) error {
	if r, ok := s.(NotificationRecorder); ok {
		return r.RecordNotification(ev)
	}
	return nil
}

// OrNop returns s, or NopSink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return NopSink{}
	}
	return s
}
