package metrics

// MultiSink fans out records to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatch forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDispatch(rec DispatchRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatch(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordCompletion forwards completion records to sinks that support them.
func (m *MultiSink) RecordCompletion(rec CompletionRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(CompletionRecorder); ok {
			if err := r.RecordCompletion(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSimulationState forwards lifecycle records to sinks that support them.
func (m *MultiSink) RecordSimulationState(rec SimulationRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(SimulationRecorder); ok {
			if err := r.RecordSimulationState(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
