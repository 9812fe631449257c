package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `log_level: debug
scheduling:
  speed_mph: 40
  constraints:
    max_jobs_per_day: 3
    buffer_minutes: 15
    working_hours:
      start: "08:00"
      end: "17:00"
    hard_deadlines:
      J1: "2025-03-10T12:00:00Z"
  preferences:
    goal: balance_workload
history:
  backend: sqlite
  path: history.db
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "nop"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  qos:
    schedule: 1
notify:
  on_optimize: true
  retries: 2
api:
  token: secret
  rate_limit: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 40.0, cfg.Scheduling.SpeedMPH)
	assert.Equal(t, 3, cfg.Scheduling.Constraints.MaxJobsPerDay)
	assert.Equal(t, "08:00", cfg.Scheduling.Constraints.WorkingHours.Start)
	assert.Equal(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), cfg.Scheduling.Constraints.HardDeadlines["J1"].UTC())
	assert.Equal(t, model.GoalBalanceWorkload, cfg.Scheduling.Preferences.Goal)
	assert.Equal(t, history.BackendSQLite, cfg.History.Backend)
	assert.Equal(t, ":9100", cfg.Metrics.PrometheusAddr)
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, "nop", cfg.Metrics.Sinks[0].Type)
	assert.Equal(t, "cli", cfg.MQTT.ClientID)
	assert.Equal(t, byte(1), cfg.MQTT.QoS["schedule"])
	assert.Equal(t, "teams/%s/schedule", cfg.MQTT.ScheduleTopic)
	assert.True(t, cfg.MQTTEnabled())
	assert.True(t, cfg.Notify.OnOptimize)
	assert.Equal(t, 2, cfg.Notify.Retries)
	assert.Equal(t, 5*time.Second, cfg.Notify.AckTimeout())
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, 6, cfg.API.Burst)
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	path := writeFile(t, "config.json", `{"api": {"addr": ":9000"}, "history": {"backend": "memory"}}`)
	t.Setenv("SCHED_API__ADDR", ":9999")
	t.Setenv("SCHED_SCHEDULING__SPEED_MPH", "25")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.API.Addr)
	assert.Equal(t, 25.0, cfg.Scheduling.SpeedMPH)
	assert.False(t, cfg.MQTTEnabled())
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30.0, cfg.Scheduling.SpeedMPH)
	assert.Equal(t, history.BackendMemory, cfg.History.Backend)
	assert.Equal(t, 10*time.Second, cfg.API.ReadTimeout())
	assert.Empty(t, cfg.MQTT.ScheduleTopic)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"config.toml": `x = 1`,
		"bad.yaml": `scheduling:
  constraints:
    working_hours:
      start: "18:00"
      end: "08:00"
`,
		"neg.yaml": `api:
  rate_limit: -1
`,
		"mqtt.yaml": `mqtt:
  broker: "tcp://localhost:1883"
  schedule_topic: "teams/schedule"
`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, name, data))
			assert.Error(t, err)
		})
	}
}

func TestSchedulingApply(t *testing.T) {
	sc := SchedulingConfig{
		Constraints: model.Constraints{MaxJobsPerDay: 4, BufferMinutes: 30, WorkingHours: model.WorkingHours{Start: "08:00", End: "18:00"}},
		Preferences: model.Preferences{Goal: model.GoalMinimizeTravel, ClusterRadiusMiles: 10},
	}
	req := model.SchedulingRequest{Constraints: model.Constraints{BufferMinutes: 5}}
	sc.Apply(&req)
	assert.Equal(t, 4, req.Constraints.MaxJobsPerDay)
	assert.Equal(t, 5, req.Constraints.BufferMinutes)
	assert.Equal(t, "08:00", req.Constraints.WorkingHours.Start)
	assert.Equal(t, model.GoalMinimizeTravel, req.Preferences.Goal)
	assert.Equal(t, 10.0, req.Preferences.ClusterRadiusMiles)
}
