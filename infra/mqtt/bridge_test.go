package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/slotshare/core/events"
	"github.com/kilianp07/slotshare/internal/eventbus"
)

type sent struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []sent
	fail map[string]bool
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[topic] {
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, sent{topic, payload})
	return nil
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.msgs {
		out = append(out, m.topic)
	}
	return out
}

func TestForwardFansOutToRecipients(t *testing.T) {
	pub := &fakePublisher{}
	b := NewBridge(pub, "", nil)
	ev := events.RoomEvent{RoomID: "r1", Name: events.ExchangeRequestUpdated, Recipients: []string{"alice", "bob"},
		Payload: map[string]any{"status": "approved"}, At: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, b.Forward(ev))
	assert.Equal(t, []string{
		"rooms/r1/events",
		"rooms/r1/members/alice/events",
		"rooms/r1/members/bob/events",
	}, pub.topics())

	var got events.RoomEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &got))
	assert.Equal(t, ev.Name, got.Name)
	assert.Equal(t, "approved", got.Payload["status"])
	assert.True(t, ev.At.Equal(got.At))
}

func TestRunLogsFailuresAndContinues(t *testing.T) {
	pub := &fakePublisher{fail: map[string]bool{"slots/r1/events": true}}
	b := NewBridge(pub, "slots", nil)
	bus := eventbus.NewRoomBus()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, bus) }()

	require.Eventually(t, func() bool {
		bus.Publish(events.RoomEvent{RoomID: "r1", Name: events.ScheduleConfirmed})
		bus.Publish(events.RoomEvent{RoomID: "r2", Name: events.ScheduleConfirmed})
		return len(pub.topics()) > 0
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	for _, topic := range pub.topics() {
		assert.Equal(t, "slots/r2/events", topic)
	}
}
