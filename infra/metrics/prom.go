package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// PromSink records scheduler activity in Prometheus metrics.
type PromSink struct {
	optimizations *prometheus.CounterVec
	duration      prometheus.Histogram
	assigned      prometheus.Gauge
	unassigned    prometheus.Gauge
	utilization   prometheus.Gauge
	distance      prometheus.Gauge
	efficiency    prometheus.Gauge
	conflicts     *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	teamJobs      *prometheus.GaugeVec
	notifyLatency *prometheus.HistogramVec
}

// NewPromSink registers scheduler metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered under the same name are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.optimizations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_optimizations_total",
		Help: "Total number of optimization passes",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_optimization_duration_seconds",
		Help:    "Wall time of an optimization pass",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if s.assigned, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_assigned_jobs",
		Help: "Jobs assigned by the last optimization pass",
	})); err != nil {
		return nil, err
	}
	if s.unassigned, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_unassigned_jobs",
		Help: "Jobs left unassigned by the last optimization pass",
	})); err != nil {
		return nil, err
	}
	if s.utilization, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_team_utilization_ratio",
		Help: "Committed slots over total capacity",
	})); err != nil {
		return nil, err
	}
	if s.distance, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_travel_distance_miles",
		Help: "Total lead travel distance of the current plan",
	})); err != nil {
		return nil, err
	}
	if s.efficiency, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_geographic_efficiency",
		Help: "Average geographic efficiency score of the current plan",
	})); err != nil {
		return nil, err
	}
	if s.conflicts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_conflicts_total",
		Help: "Detected scheduling conflicts",
	}, []string{"type", "severity", "auto_resolvable"})); err != nil {
		return nil, err
	}
	if s.resolutions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_resolutions_total",
		Help: "Resolution lifecycle steps",
	}, []string{"action", "conflict_type", "strategy"})); err != nil {
		return nil, err
	}
	if s.teamJobs, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_team_jobs",
		Help: "Jobs led per team member and day",
	}, []string{"team_id", "date"})); err != nil {
		return nil, err
	}
	if s.notifyLatency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_notification_latency_seconds",
		Help:    "Time between schedule publication and acknowledgment",
		Buckets: prometheus.DefBuckets,
	}, []string{"acknowledged"})); err != nil {
		return nil, err
	}
	return s, nil
}

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

// RecordOptimization updates the pass counters and the plan gauges.
func (s *PromSink) RecordOptimization(rec coremetrics.OptimizationRecord) error {
	outcome := "ok"
	if rec.Failed {
		outcome = "error"
	}
	s.optimizations.WithLabelValues(outcome).Inc()
	s.duration.Observe(rec.Duration.Seconds())
	if rec.Failed {
		return nil
	}
	s.assigned.Set(float64(rec.Assigned))
	s.unassigned.Set(float64(rec.Unassigned))
	s.utilization.Set(rec.TeamUtilization)
	s.distance.Set(rec.TotalTravelDistance)
	s.efficiency.Set(rec.GeographicEfficiency)
	return nil
}

// RecordConflict counts a detected conflict.
func (s *PromSink) RecordConflict(rec coremetrics.ConflictRecord) error {
	s.conflicts.WithLabelValues(string(rec.Type), string(rec.Severity), strconv.FormatBool(rec.AutoResolvable)).Inc()
	return nil
}

// RecordResolution counts a resolution step.
func (s *PromSink) RecordResolution(rec coremetrics.ResolutionRecord) error {
	s.resolutions.WithLabelValues(rec.Action, string(rec.ConflictType), string(rec.Strategy)).Inc()
	return nil
}

// RecordAssignments replaces the per-team gauges with the given plan.
func (s *PromSink) RecordAssignments(as []model.OptimizedAssignment) error {
	s.teamJobs.Reset()
	for _, a := range as {
		s.teamJobs.WithLabelValues(a.LeadID, a.Date()).Inc()
	}
	return nil
}

// RecordNotification observes the acknowledgment latency.
func (s *PromSink) RecordNotification(rec coremetrics.NotificationRecord) error {
	s.notifyLatency.WithLabelValues(strconv.FormatBool(rec.Acknowledged)).Observe(rec.Latency.Seconds())
	return nil
}
