package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

type lineServer struct {
	mu     sync.Mutex
	bodies []string
}

func newLineServer(t *testing.T) (*lineServer, *httptest.Server) {
	ls := &lineServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(b)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return ls, srv
}

func (ls *lineServer) all() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]string(nil), ls.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordOptimization(t *testing.T) {
	ls, srv := newLineServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, sink.RecordOptimization(coremetrics.OptimizationRecord{
		Assigned:             3,
		Duration:             1500 * time.Microsecond,
		TotalTravelDistance:  4.33333,
		TotalTravelTime:      9,
		TeamUtilization:      1,
		GeographicEfficiency: 0.5,
		Time:                 now,
	}))
	p := write.NewPointWithMeasurement("optimization_pass").
		AddTag("component", "scheduler").
		AddTag("failed", "false").
		AddField("assigned", 3).
		AddField("unassigned", 0).
		AddField("conflicts", 0).
		AddField("duration_ms", 1.5).
		AddField("travel_miles", 4.333).
		AddField("travel_minutes", 9).
		AddField("utilization", 1.0).
		AddField("efficiency", 0.5).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, ls.all())
}

func TestInfluxSink_RecordConflictAndNotification(t *testing.T) {
	ls, srv := newLineServer(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, sink.RecordConflict(coremetrics.ConflictRecord{
		Type: model.ConflictOverloadedTeam, Severity: model.SeverityHigh, Date: "2025-03-10", AutoResolvable: true, Time: now,
	}))
	require.NoError(t, sink.RecordNotification(coremetrics.NotificationRecord{
		TeamID: "T1", Date: "2025-03-10", Jobs: 2, Acknowledged: true, Latency: time.Second, Time: now,
	}))

	c := write.NewPointWithMeasurement("conflict_detected").
		AddTag("type", "overloaded_team").
		AddTag("severity", "high").
		AddTag("date", "2025-03-10").
		AddField("auto_resolvable", true).
		SetTime(now)
	n := write.NewPointWithMeasurement("schedule_ack").
		AddTag("team_id", "T1").
		AddTag("date", "2025-03-10").
		AddTag("acknowledged", "true").
		AddField("jobs", 2).
		AddField("latency_ms", 1000.0).
		SetTime(now)
	assert.Equal(t, []string{line(c), line(n)}, ls.all())
}

func TestInfluxSink_RecordAssignments(t *testing.T) {
	ls, srv := newLineServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	as := []model.OptimizedAssignment{
		{JobID: "J1", LeadID: "T1", Start: start},
		{JobID: "J2", LeadID: "T1", AssistantID: "A1", Start: start.Add(4 * time.Hour)},
	}
	require.NoError(t, sink.RecordAssignments(as))
	bodies := ls.all()
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "assignment,job_id=J1,lead_id=T1,date=2025-03-10")
	assert.Contains(t, bodies[1], "assistant_id=A1")
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	var mu sync.Mutex
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			mu.Lock()
			called = true
			mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	assert.IsType(t, coremetrics.NopSink{}, sink)
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, called, "health endpoint not called")
}
