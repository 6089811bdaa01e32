package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/slotshare/core/metrics"
)

// PromSink records scheduling activity in Prometheus metrics.
type PromSink struct {
	allocations   *prometheus.CounterVec
	allocLatency  *prometheus.HistogramVec
	assignedHours *prometheus.GaugeVec
	unassigned    *prometheus.GaugeVec
	simulations   *prometheus.CounterVec
	exchanges     *prometheus.CounterVec
	chainHops     prometheus.Histogram
	commits       *prometheus.CounterVec
	blocks        prometheus.Counter
	notifications *prometheus.CounterVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotshare_allocations_total",
			Help: "Allocation runs by mode",
		}, []string{"mode", "dry_run"}),
		allocLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slotshare_allocation_duration_seconds",
			Help:    "Time spent computing an allocation",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		assignedHours: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "slotshare_assigned_hours",
			Help: "Hours assigned by the last stored allocation of a room",
		}, []string{"room_id"}),
		unassigned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "slotshare_members_short",
			Help: "Members below the weekly minimum after the last stored allocation",
		}, []string{"room_id"}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotshare_simulations_total",
			Help: "Travel simulations by verdict",
		}, []string{"valid", "code"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotshare_exchange_transitions_total",
			Help: "Exchange request status changes",
		}, []string{"type", "status"}),
		chainHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slotshare_chain_hops",
			Help:    "Hops of chains when they close",
			Buckets: []float64{1, 2, 3, 4, 5, 10},
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotshare_commits_total",
			Help: "Calendar confirmations by outcome",
		}, []string{"outcome"}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotshare_calendar_blocks_total",
			Help: "Calendar blocks written",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotshare_notifications_total",
			Help: "Room events published",
		}, []string{"name"}),
	}
	var err error
	s.allocations, err = register(reg, s.allocations)
	if err == nil {
		s.allocLatency, err = register(reg, s.allocLatency)
	}
	if err == nil {
		s.assignedHours, err = register(reg, s.assignedHours)
	}
	if err == nil {
		s.unassigned, err = register(reg, s.unassigned)
	}
	if err == nil {
		s.simulations, err = register(reg, s.simulations)
	}
	if err == nil {
		s.exchanges, err = register(reg, s.exchanges)
	}
	if err == nil {
		s.chainHops, err = register(reg, s.chainHops)
	}
	if err == nil {
		s.commits, err = register(reg, s.commits)
	}
	if err == nil {
		s.blocks, err = register(reg, s.blocks)
	}
	if err == nil {
		s.notifications, err = register(reg, s.notifications)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordAllocation implements coremetrics.Sink.
func (s *PromSink) RecordAllocation(ev coremetrics.AllocationEvent) error {
	s.allocations.WithLabelValues(ev.Mode, strconv.FormatBool(ev.DryRun)).Inc()
	s.allocLatency.WithLabelValues(ev.Mode).Observe(ev.Duration.Seconds())
	if !ev.DryRun {
		s.assignedHours.WithLabelValues(ev.RoomID).Set(ev.AssignedHours)
		s.unassigned.WithLabelValues(ev.RoomID).Set(float64(ev.Unassigned))
	}
	return nil
}

// RecordSimulation implements coremetrics.SimulationRecorder.
func (s *PromSink) RecordSimulation(ev coremetrics.SimulationEvent) error {
	s.simulations.WithLabelValues(strconv.FormatBool(ev.Valid), ev.Code).Inc()
	return nil
}

// RecordExchange implements coremetrics.ExchangeRecorder.
func (s *PromSink) RecordExchange(ev coremetrics.ExchangeEvent) error {
	s.exchanges.WithLabelValues(ev.Type, ev.Status).Inc()
	if ev.Hops > 0 && (ev.Status == "approved" || ev.Status == "rejected") {
		s.chainHops.Observe(float64(ev.Hops))
	}
	return nil
}

// RecordCommit implements coremetrics.CommitRecorder.
func (s *PromSink) RecordCommit(ev coremetrics.CommitEvent) error {
	outcome := "written"
	switch {
	case ev.Err != "":
		outcome = "failed"
	case ev.Skipped:
		outcome = "skipped"
	}
	s.commits.WithLabelValues(outcome).Inc()
	s.blocks.Add(float64(ev.Blocks))
	return nil
}

// RecordNotification implements coremetrics.NotificationRecorder.
func (s *PromSink) RecordNotification(ev coremetrics.NotificationEvent) error {
	s.notifications.WithLabelValues(ev.Name).Inc()
	return nil
}
