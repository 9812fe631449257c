package config

// SentryConfig enables error reporting to Sentry. Reporting is off while DSN
// is empty.
type SentryConfig struct {
	DSN         string `json:"dsn"`
	Environment string `json:"environment"`
	Release     string `json:"release"`
	// SampleRate is the share of errors sent; 0 means all of them.
	SampleRate       float64 `json:"sample_rate"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	// Tags are attached to every captured error, e.g. the depot name.
	Tags map[string]string `json:"tags"`
}
