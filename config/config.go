package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/mqtt"
)

// EnvPrefix prefixes environment overrides. SCHED_API__ADDR sets api.addr.
const EnvPrefix = "SCHED_"

type Config struct {
	LogLevel   string           `json:"log_level"`
	Scheduling SchedulingConfig `json:"scheduling"`
	History    history.Config   `json:"history"`
	Metrics    metrics.Config   `json:"metrics"`
	MQTT       mqtt.Config      `json:"mqtt"`
	Notify     NotifyConfig     `json:"notify"`
	API        APIConfig        `json:"api"`
	Sentry     SentryConfig     `json:"sentry"`
}

// Load reads the file at path, applies environment overrides and validates
// the result. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Scheduling.SetDefaults()
	c.History.SetDefaults()
	c.Notify.SetDefaults()
	c.API.SetDefaults()
	if c.MQTTEnabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section and joins the errors.
func (c Config) Validate() error {
	errs := []error{
		c.Scheduling.Validate(),
		c.History.Validate(),
		c.Notify.Validate(),
		c.API.Validate(),
	}
	if c.MQTTEnabled() {
		errs = append(errs, c.MQTT.Validate())
	}
	return errors.Join(errs...)
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool { return c.MQTT.Broker != "" }
