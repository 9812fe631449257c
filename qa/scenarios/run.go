package scenarios

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/notify"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/scheduling"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/mqtt"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/eventbus"
)

var stepErrors = map[string]error{
	"invalid_request":      model.ErrInvalidRequest,
	"constraint_violation": model.ErrConstraintViolation,
	"invalid_revert":       model.ErrInvalidRevert,
}

// RunScenario optimizes the scenario request, notifies the teams through a
// mock publisher and plays the resolution steps, checking every expectation.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	bus := eventbus.New(eventbus.WithBuffer(64))
	t.Cleanup(bus.Close)
	t.Cleanup(cancel)
	metrics.StartEventCollector(ctx, bus, sink)

	pub := mqtt.NewMockPublisher()
	for _, id := range sc.Decline {
		pub.Decline[id] = true
	}
	for _, id := range sc.Silent {
		pub.Silent[id] = true
	}
	for _, id := range sc.FailTeams {
		pub.FailIDs[id] = true
	}

	s := scheduling.New(
		scheduling.WithMetrics(sink),
		scheduling.WithEventBus(bus),
		scheduling.WithHistoryStore(history.NewMemoryStore()),
	)
	t.Cleanup(func() { _ = s.Close() })

	req := sc.SchedulingRequest()
	res, err := s.OptimizeSchedule(ctx, req)
	require.NoError(t, err)
	checkResult(t, sc.Expected, res)
	assert.Equal(t, float64(sc.Expected.Assigned), sample(reg, "scheduler_assigned_jobs"))
	assert.Equal(t, float64(len(sc.Expected.Unassigned)), sample(reg, "scheduler_unassigned_jobs"))

	n := notify.New(pub, notify.WithEventBus(bus), notify.WithAckTimeout(10*time.Millisecond), notify.WithRetries(1))
	rep, err := n.Notify(ctx, res, req.Jobs...)
	require.NoError(t, err)
	assert.Equal(t, sc.Expected.Sent, rep.Sent, "sent")
	assert.Equal(t, sc.Expected.Acked, rep.Acknowledged, "acknowledged")

	deliveries := 0
	for _, d := range rep.Deliveries {
		deliveries += d.Attempts
	}
	require.Eventually(t, func() bool {
		return sample(reg, "scheduler_conflicts_total") == float64(len(sc.Expected.Conflicts)) &&
			sample(reg, "scheduler_notification_latency_seconds") == float64(deliveries)
	}, time.Second, 10*time.Millisecond)

	historyIDs := make(map[int]string)
	for i, st := range sc.Steps {
		switch st.Action {
		case "resolve":
			conflicts := s.Conflicts()
			require.Less(t, st.Conflict, len(conflicts), "step %d", i)
			prop, err := s.ProposeResolution(ctx, conflicts[st.Conflict].ID, st.options()...)
			if checkStepError(t, i, st, err) {
				continue
			}
			_, h, err := s.ApplyResolution(ctx, prop, "scenario")
			if checkStepError(t, i, st, err) {
				continue
			}
			historyIDs[i] = h.ID
			if st.Outcome != "" {
				assert.Equal(t, model.HistoryOutcome(st.Outcome), h.Outcome, "step %d", i)
			}
		case "reject":
			conflicts := s.Conflicts()
			require.Less(t, st.Conflict, len(conflicts), "step %d", i)
			prop, err := s.ProposeResolution(ctx, conflicts[st.Conflict].ID, st.options()...)
			require.NoError(t, err, "step %d", i)
			rejected, err := s.RejectResolution(ctx, prop.ID)
			require.NoError(t, err, "step %d", i)
			assert.Equal(t, model.StateRejected, rejected.State)
		case "revert":
			_, err := s.RevertResolution(ctx, historyIDs[st.Revert])
			if checkStepError(t, i, st, err) {
				continue
			}
		}
		checkSession(t, i, st, s)
	}
}

// checkStepError reports whether the step stopped on its expected error.
func checkStepError(t *testing.T, i int, st Step, err error) bool {
	t.Helper()
	if st.Error == "" {
		require.NoError(t, err, "step %d", i)
		return false
	}
	want, ok := stepErrors[st.Error]
	require.True(t, ok, "step %d: unknown error %q", i, st.Error)
	require.Error(t, err, "step %d", i)
	assert.True(t, errors.Is(err, want), "step %d: %v is not %s", i, err, st.Error)
	return true
}

func checkSession(t *testing.T, i int, st Step, s *scheduling.Scheduler) {
	t.Helper()
	snap, ok := s.Snapshot()
	require.True(t, ok)
	if st.Version != 0 {
		assert.Equal(t, st.Version, snap.Version, "step %d version", i)
	}
	if st.Conflicts != nil {
		assert.Len(t, s.Conflicts(), *st.Conflicts, "step %d conflicts", i)
	}
	if st.Assignments != nil {
		assert.Equal(t, st.Assignments, leads(snap.Assignments), "step %d assignments", i)
	}
}

func checkResult(t *testing.T, exp Expected, res model.SchedulingResult) {
	t.Helper()
	assert.Len(t, res.Assignments, exp.Assigned)
	assert.Equal(t, exp.Assigned, res.OptimizationMetrics.AssignedJobs)

	var unassigned []string
	for _, u := range res.Unassigned {
		unassigned = append(unassigned, u.JobID)
	}
	assert.ElementsMatch(t, exp.Unassigned, unassigned)
	assert.Equal(t, len(exp.Unassigned), res.OptimizationMetrics.UnassignedJobs)

	if exp.Assignments != nil {
		assert.Equal(t, exp.Assignments, leads(res.Assignments))
	}
	for job, prev := range exp.Previous {
		var got string
		for _, a := range res.Assignments {
			if a.JobID == job {
				got = a.PreviousJobID
			}
		}
		assert.Equal(t, prev, got, "previous job of %s", job)
	}
	if exp.Utilization != nil {
		assert.InDelta(t, *exp.Utilization, res.OptimizationMetrics.UtilizationRate, 1e-9)
	}

	require.Len(t, res.Conflicts, len(exp.Conflicts))
	for i, want := range exp.Conflicts {
		got := res.Conflicts[i]
		assert.Equal(t, model.ConflictType(want.Type), got.Type)
		if want.Severity != "" {
			assert.Equal(t, model.Severity(want.Severity), got.Severity)
		}
		if want.Jobs != nil {
			assert.Equal(t, want.Jobs, got.JobIDs)
		}
		if want.Auto != nil {
			assert.Equal(t, *want.Auto, got.AutoResolvable)
		}
	}
}

func leads(as []model.OptimizedAssignment) map[string]string {
	out := make(map[string]string, len(as))
	for _, a := range as {
		out[a.JobID] = a.LeadID
	}
	return out
}

// sample sums a metric over its series: gauge and counter values, histogram
// sample counts.
func sample(reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return -1
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.Gauge != nil:
				total += m.GetGauge().GetValue()
			case m.Counter != nil:
				total += m.GetCounter().GetValue()
			case m.Histogram != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}
