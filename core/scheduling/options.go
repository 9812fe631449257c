package scheduling

import (
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/logger"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/monitoring"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/eventbus"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(sink metrics.MetricsSink) Option {
	return func(s *Scheduler) {
		if sink != nil {
			s.metrics = sink
		}
	}
}

// WithEventBus publishes optimization, conflict and resolution events on bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithHistoryStore persists resolution history. The scheduler closes the
// store on Close.
func WithHistoryStore(store history.Store) Option {
	return func(s *Scheduler) {
		if store != nil {
			s.store = store
		}
	}
}

func WithMonitor(m monitoring.Monitor) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.monitor = m
		}
	}
}

// WithClock sets the clock used for resolution and history timestamps.
// Optimization output never depends on it.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSpeed sets the average travel speed in miles per hour.
func WithSpeed(mph float64) Option {
	return func(s *Scheduler) { s.est = geo.NewEstimator(mph) }
}
