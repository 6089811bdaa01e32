package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/slotshare/core/metrics"
	"github.com/kilianp07/slotshare/internal/eventbus"
)

// StartEventCollector subscribes to the room bus and records every event as a
// notification. It stops when the context is canceled or the bus closes.
func StartEventCollector(ctx context.Context, bus *eventbus.RoomBus, sink coremetrics.Sink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = coremetrics.RecordNotification(sink, coremetrics.NotificationEvent{
					RoomID: ev.RoomID,
					Name:   ev.Name,
					Time:   ev.At,
				})
			}
		}
	}()
}
