package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/slotshare/core/events"
	coremetrics "github.com/kilianp07/slotshare/core/metrics"
	"github.com/kilianp07/slotshare/internal/eventbus"
)

func TestPromSinkCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordAllocation(coremetrics.AllocationEvent{RoomID: "r1", Mode: "fair", AssignedHours: 4, Unassigned: 2}))
	require.NoError(t, sink.RecordAllocation(coremetrics.AllocationEvent{RoomID: "r1", Mode: "fair", DryRun: true, AssignedHours: 9}))
	require.NoError(t, sink.RecordCommit(coremetrics.CommitEvent{RoomID: "r1", Blocks: 3}))
	require.NoError(t, sink.RecordCommit(coremetrics.CommitEvent{RoomID: "r1", Skipped: true}))
	require.NoError(t, sink.RecordExchange(coremetrics.ExchangeEvent{Type: "request", Status: "approved", Hops: 2}))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.allocations.WithLabelValues("fair", "false")))
	assert.Equal(t, 4.0, testutil.ToFloat64(sink.assignedHours.WithLabelValues("r1")), "dry runs leave the gauges alone")
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.unassigned.WithLabelValues("r1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.commits.WithLabelValues("written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.commits.WithLabelValues("skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.blocks))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.exchanges.WithLabelValues("request", "approved")))
}

func TestPromSinkSharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, first.RecordSimulation(coremetrics.SimulationEvent{Valid: false, Code: "travel_time"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(second.simulations.WithLabelValues("false", "travel_time")))
}

func TestEventCollectorRecordsNotifications(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	bus := eventbus.NewRoomBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	counter := sink.notifications.WithLabelValues(events.ScheduleConfirmed)
	require.Eventually(t, func() bool {
		bus.Publish(events.RoomEvent{RoomID: "r1", Name: events.ScheduleConfirmed, At: time.Now()})
		return testutil.ToFloat64(counter) > 0
	}, time.Second, 10*time.Millisecond)
}
