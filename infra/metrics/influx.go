package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/slotshare/core/metrics"
	"github.com/kilianp07/slotshare/infra/logger"
)

// InfluxConfig locates an InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes scheduling events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAllocation writes one allocation run.
func (s *InfluxSink) RecordAllocation(ev coremetrics.AllocationEvent) error {
	p := write.NewPointWithMeasurement("allocation_run").
		AddTag("room_id", ev.RoomID).
		AddTag("mode", ev.Mode).
		AddTag("dry_run", strconv.FormatBool(ev.DryRun)).
		AddField("slots", ev.Slots).
		AddField("assigned_hours", round3(ev.AssignedHours)).
		AddField("unassigned", ev.Unassigned).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSimulation writes a simulator verdict.
func (s *InfluxSink) RecordSimulation(ev coremetrics.SimulationEvent) error {
	p := write.NewPointWithMeasurement("travel_simulation").
		AddTag("room_id", ev.RoomID).
		AddTag("valid", strconv.FormatBool(ev.Valid))
	if ev.Code != "" {
		p = p.AddTag("code", ev.Code)
	}
	p = p.AddField("count", 1).SetTime(ev.Time)
	return s.write(p)
}

// RecordExchange writes an exchange status change.
func (s *InfluxSink) RecordExchange(ev coremetrics.ExchangeEvent) error {
	p := write.NewPointWithMeasurement("exchange_transition").
		AddTag("room_id", ev.RoomID).
		AddTag("type", ev.Type).
		AddTag("status", ev.Status).
		AddField("hops", ev.Hops).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordCommit writes a calendar confirmation.
func (s *InfluxSink) RecordCommit(ev coremetrics.CommitEvent) error {
	p := write.NewPointWithMeasurement("calendar_commit").
		AddTag("room_id", ev.RoomID).
		AddTag("skipped", strconv.FormatBool(ev.Skipped)).
		AddField("blocks", ev.Blocks).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000))
	if ev.Err != "" {
		p = p.AddField("error", ev.Err)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordNotification writes a published room event.
func (s *InfluxSink) RecordNotification(ev coremetrics.NotificationEvent) error {
	p := write.NewPointWithMeasurement("room_notification").
		AddTag("room_id", ev.RoomID).
		AddTag("name", ev.Name).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
