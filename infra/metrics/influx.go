package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/logger"
)

// InfluxSink writes scheduler events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOptimization writes one optimization_pass point.
func (s *InfluxSink) RecordOptimization(rec coremetrics.OptimizationRecord) error {
	p := write.NewPointWithMeasurement("optimization_pass").
		AddTag("component", "scheduler").
		AddTag("failed", strconv.FormatBool(rec.Failed)).
		AddField("assigned", rec.Assigned).
		AddField("unassigned", rec.Unassigned).
		AddField("conflicts", rec.Conflicts).
		AddField("duration_ms", round3(rec.Duration.Seconds()*1000)).
		AddField("travel_miles", round3(rec.TotalTravelDistance)).
		AddField("travel_minutes", rec.TotalTravelTime).
		AddField("utilization", round3(rec.TeamUtilization)).
		AddField("efficiency", round3(rec.GeographicEfficiency)).
		SetTime(rec.Time)
	return s.write(p)
}

// RecordConflict writes a conflict_detected point.
func (s *InfluxSink) RecordConflict(rec coremetrics.ConflictRecord) error {
	p := write.NewPointWithMeasurement("conflict_detected").
		AddTag("type", string(rec.Type)).
		AddTag("severity", string(rec.Severity)).
		AddTag("date", rec.Date).
		AddField("auto_resolvable", rec.AutoResolvable).
		SetTime(rec.Time)
	return s.write(p)
}

// RecordResolution writes a resolution_step point.
func (s *InfluxSink) RecordResolution(rec coremetrics.ResolutionRecord) error {
	p := write.NewPointWithMeasurement("resolution_step").
		AddTag("action", rec.Action).
		AddTag("conflict_type", string(rec.ConflictType)).
		AddTag("strategy", string(rec.Strategy)).
		AddField("failed", rec.Failed).
		SetTime(rec.Time)
	return s.write(p)
}

// RecordAssignments writes one assignment point per job.
func (s *InfluxSink) RecordAssignments(as []model.OptimizedAssignment) error {
	for _, a := range as {
		p := write.NewPointWithMeasurement("assignment").
			AddTag("job_id", a.JobID).
			AddTag("lead_id", a.LeadID).
			AddTag("date", a.Date()).
			AddField("travel_miles", round3(a.EstimatedTravelDistance)).
			AddField("travel_minutes", a.EstimatedTravelMinutes).
			AddField("efficiency", round3(a.EfficiencyScore.Float())).
			AddField("workload", round3(a.WorkloadScore.Float())).
			SetTime(a.Start)
		if a.AssistantID != "" {
			p = p.AddTag("assistant_id", a.AssistantID)
		}
		if err := s.write(p); err != nil {
			return err
		}
	}
	return nil
}

// RecordNotification writes a schedule_ack point.
func (s *InfluxSink) RecordNotification(rec coremetrics.NotificationRecord) error {
	p := write.NewPointWithMeasurement("schedule_ack").
		AddTag("team_id", rec.TeamID).
		AddTag("date", rec.Date).
		AddTag("acknowledged", strconv.FormatBool(rec.Acknowledged)).
		AddField("jobs", rec.Jobs).
		AddField("latency_ms", round3(rec.Latency.Seconds()*1000)).
		SetTime(rec.Time)
	if rec.Error != "" {
		p = p.AddField("errors", rec.Error)
	}
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
