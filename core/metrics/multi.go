package metrics

// MultiSink fans events out to several sinks. The first error is returned
// after every sink has been called.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) each(fn func(Sink) error) error {
	var first error
	for _, s := range m.Sinks {
		if err := fn(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RecordAllocation implements Sink.
func (m *MultiSink) RecordAllocation(ev AllocationEvent) error {
	return m.each(func(s Sink) error { return s.RecordAllocation(ev) })
}

// RecordSimulation implements SimulationRecorder.
func (m *MultiSink) RecordSimulation(ev SimulationEvent) error {
	return m.each(func(s Sink) error { return RecordSimulation(s, ev) })
}

// RecordExchange implements ExchangeRecorder.
func (m *MultiSink) RecordExchange(ev ExchangeEvent) error {
	return m.each(func(s Sink) error { return RecordExchange(s, ev) })
}

// RecordCommit implements CommitRecorder.
func (m *MultiSink) RecordCommit(ev CommitEvent) error {
	return m.each(func(s Sink) error { return RecordCommit(s, ev) })
}

// RecordNotification implements NotificationRecorder.
func (m *MultiSink) RecordNotification(ev NotificationEvent) error {
	return m.each(func(s Sink) error { return RecordNotification(s, ev) })
}
