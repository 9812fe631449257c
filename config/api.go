package config

import (
	"fmt"
	"time"
)

// APIConfig configures the HTTP API.
type APIConfig struct {
	Addr string `json:"addr"`
	// Token enables bearer authentication when set.
	Token string `json:"token"`
	// RateLimit is the sustained number of requests per second; zero disables limiting.
	RateLimit          float64 `json:"rate_limit"`
	Burst              int     `json:"burst"`
	ReadTimeoutSeconds int     `json:"read_timeout_seconds"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.RateLimit > 0 && c.Burst <= 0 {
		c.Burst = int(c.RateLimit) + 1
	}
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = 10
	}
}

func (c APIConfig) Validate() error {
	if c.RateLimit < 0 {
		return fmt.Errorf("api: rate_limit must not be negative")
	}
	return nil
}

func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// NotifyConfig configures the delivery of schedules over MQTT.
type NotifyConfig struct {
	// OnOptimize sends the schedules after every successful optimization.
	OnOptimize        bool `json:"on_optimize"`
	AckTimeoutSeconds int  `json:"ack_timeout_seconds"`
	Retries           int  `json:"retries"`
	// ForwardHistory publishes resolution history on the history topic.
	ForwardHistory bool `json:"forward_history"`
}

func (c *NotifyConfig) SetDefaults() {
	if c.AckTimeoutSeconds <= 0 {
		c.AckTimeoutSeconds = 5
	}
}

func (c NotifyConfig) Validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("notify: retries must not be negative")
	}
	return nil
}

func (c NotifyConfig) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutSeconds) * time.Second
}
