// Package infra groups the adapters around the scheduling core: the MQTT
// team notifier, the Prometheus and InfluxDB sinks, the zerolog logger and
// the Sentry monitor. Each implements an interface declared under core/.
package infra
