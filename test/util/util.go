// Package util provides helpers shared by the container based tests.
//
// StartMosquitto, StartRedis and StartPostgres launch disposable Docker
// containers and return a connection URL plus a cleanup function.
//
// StartTeamSimulator plays the team side of the MQTT protocol: it
// acknowledges every schedule it receives.
//
// WaitForMetric polls a Prometheus metrics endpoint until the desired metric
// appears in the output.
package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	coremqtt "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/mqtt"
)

const (
	// Default timeouts for helper operations
	MosquittoReadyTimeout = 5 * time.Second
	MetricTimeout         = 5 * time.Second

	pollInterval = 50 * time.Millisecond
)

// RequireDocker skips the test when docker is not installed or when -short
// is set.
func RequireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("container test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
}

// WaitForMetric polls the given metrics URL until the provided substring is
// found in the output or the context is done.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			body, rerr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if rerr != nil {
				return fmt.Errorf("read metrics body: %w", rerr)
			}
			if strings.Contains(string(body), substr) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("metric %q not found: %w", substr, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func start(ctx context.Context, req tc.ContainerRequest, port, scheme string) (string, func(), error) {
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = cont.Terminate(context.Background()) }
	host, err := cont.Host(ctx)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	mapped, err := cont.MappedPort(ctx, port)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return fmt.Sprintf("%s://%s:%s", scheme, host, mapped.Port()), cleanup, nil
}

// StartMosquitto launches a temporary Mosquitto broker inside a Docker
// container and returns its broker URL along with a cleanup function.
func StartMosquitto(ctx context.Context) (string, func(), error) {
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
connection_messages true
`

	dir, err := os.MkdirTemp("", "mosq")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			},
		},
	}
	broker, stop, err := start(ctx, req, "1883", "tcp")
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}
	cleanup := func() {
		stop()
		_ = os.RemoveAll(dir)
	}

	waitCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	if err := waitForMQTTReady(waitCtx, broker); err != nil {
		cleanup()
		return "", nil, err
	}
	return broker, cleanup, nil
}

func waitForMQTTReady(ctx context.Context, broker string) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	for {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// StartRedis launches a Redis server and returns its redis:// URL.
func StartRedis(ctx context.Context) (string, func(), error) {
	return start(ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379", "redis")
}

// StartPostgres launches a Postgres server and returns a DSN for the
// "scheduler" database.
func StartPostgres(ctx context.Context) (string, func(), error) {
	url, cleanup, err := start(ctx, tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "scheduler",
			"POSTGRES_PASSWORD": "scheduler",
			"POSTGRES_DB":       "scheduler",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}, "5432", "postgres")
	if err != nil {
		return "", nil, err
	}
	dsn := strings.Replace(url, "postgres://", "postgres://scheduler:scheduler@", 1) + "/scheduler?sslmode=disable"
	return dsn, cleanup, nil
}

// TeamSimulator acknowledges schedules published on teams/<id>/schedule.
type TeamSimulator struct {
	client paho.Client
	// Decline lists teams that refuse their schedule.
	Decline map[string]bool

	mu       sync.Mutex
	received []coremqtt.Schedule
}

// StartTeamSimulator connects a simulator to broker.
func StartTeamSimulator(t *testing.T, broker string) *TeamSimulator {
	t.Helper()
	sim := &TeamSimulator{Decline: make(map[string]bool)}
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("team-simulator")
	sim.client = paho.NewClient(opts)
	if token := sim.client.Connect(); token.Wait() && token.Error() != nil {
		t.Fatalf("simulator connect: %v", token.Error())
	}
	if token := sim.client.Subscribe("teams/+/schedule", 1, sim.onSchedule); token.Wait() && token.Error() != nil {
		t.Fatalf("simulator subscribe: %v", token.Error())
	}
	t.Cleanup(func() { sim.client.Disconnect(100) })
	return sim
}

func (s *TeamSimulator) onSchedule(_ paho.Client, m paho.Message) {
	var msg struct {
		coremqtt.Schedule
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(m.Payload(), &msg); err != nil {
		return
	}
	s.mu.Lock()
	s.received = append(s.received, msg.Schedule)
	accepted := !s.Decline[msg.TeamID]
	s.mu.Unlock()
	payload, _ := json.Marshal(map[string]any{
		"command_id": msg.CommandID,
		"team_id":    msg.TeamID,
		"accepted":   accepted,
	})
	s.client.Publish(fmt.Sprintf("teams/%s/ack", msg.TeamID), 1, false, payload)
}

// Received returns the schedules seen so far.
func (s *TeamSimulator) Received() []coremqtt.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]coremqtt.Schedule(nil), s.received...)
}
