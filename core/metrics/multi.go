package metrics

import (
	"errors"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// MultiSink fans records out to multiple sinks. Optional recorders are only
// called on the sinks that implement them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordOptimization forwards the record to all sinks and joins their errors.
func (m *MultiSink) RecordOptimization(rec OptimizationRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordOptimization(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordConflict forwards conflict records.
func (m *MultiSink) RecordConflict(rec ConflictRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(ConflictRecorder); ok {
			if err := r.RecordConflict(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordResolution forwards resolution records.
func (m *MultiSink) RecordResolution(rec ResolutionRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(ResolutionRecorder); ok {
			if err := r.RecordResolution(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordAssignments forwards committed assignments.
func (m *MultiSink) RecordAssignments(as []model.OptimizedAssignment) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(AssignmentRecorder); ok {
			if err := r.RecordAssignments(as); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordNotification forwards notification outcomes.
func (m *MultiSink) RecordNotification(rec NotificationRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(NotificationRecorder); ok {
			if err := r.RecordNotification(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes the sinks holding a connection.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
