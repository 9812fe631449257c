package metrics

import "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr enables the /metrics endpoint when set.
	PrometheusAddr string `json:"prometheus_addr"`
}
