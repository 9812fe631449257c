package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/events"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/resolution"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/eventbus"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/fixture"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

type captureSink struct {
	metrics.NopSink
	mu          sync.Mutex
	records     []metrics.OptimizationRecord
	assignments int
}

func (c *captureSink) RecordOptimization(r metrics.OptimizationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *captureSink) RecordAssignments(as []model.OptimizedAssignment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignments = len(as)
	return nil
}

type captureMonitor struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (m *captureMonitor) CaptureException(err error, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	m.tags = append(m.tags, tags)
}
func (m *captureMonitor) Recover()            {}
func (m *captureMonitor) Flush(time.Duration) {}

// withSpareTeam is the double-booked reference scenario plus a free lead T3
// based in Boston, so the conflict can be resolved automatically.
func withSpareTeam() model.SchedulingRequest { return fixture.DoubleBookedWithSpare() }

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 9, 17, 0, 0, 0, time.UTC)}
	s := New(append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func drain(ch <-chan eventbus.Event) []string {
	var types []string
	for {
		select {
		case ev := <-ch:
			types = append(types, ev.EventType())
		default:
			return types
		}
	}
}

func TestOptimizeSchedule_ReferenceScenario(t *testing.T) {
	sink := &captureSink{}
	s := newTestScheduler(t, WithMetrics(sink))

	res, err := s.OptimizeSchedule(context.Background(), fixture.Reference(2))
	require.NoError(t, err)
	require.Len(t, res.Assignments, 3)
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Unassigned)
	assert.Len(t, res.ScheduleByDate["2025-03-10"], 3)
	assert.Equal(t, 3, res.OptimizationMetrics.AssignedJobs)

	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, res.Assignments, snap.Assignments)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.records, 1)
	assert.Equal(t, 3, sink.records[0].Assigned)
	assert.False(t, sink.records[0].Failed)
	assert.Equal(t, 3, sink.assignments)
}

func TestOptimizeSchedule_Deterministic(t *testing.T) {
	a, err := newTestScheduler(t).OptimizeSchedule(context.Background(), withSpareTeam())
	require.NoError(t, err)
	s := newTestScheduler(t)
	b, err := s.OptimizeSchedule(context.Background(), withSpareTeam())
	require.NoError(t, err)
	c, err := s.OptimizeSchedule(context.Background(), withSpareTeam())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, b, c)
}

func TestOptimizeSchedule_InvalidRequest(t *testing.T) {
	sink := &captureSink{}
	bus := eventbus.New(eventbus.WithBuffer(16))
	defer bus.Close()
	sub := bus.Subscribe()
	s := newTestScheduler(t, WithMetrics(sink), WithEventBus(bus))

	_, err := s.OptimizeSchedule(context.Background(), model.SchedulingRequest{})
	require.ErrorIs(t, err, model.ErrInvalidRequest)
	_, ok := s.Snapshot()
	assert.False(t, ok)

	sink.mu.Lock()
	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].Failed)
	sink.mu.Unlock()

	ev := <-sub
	oe, ok := ev.(events.OptimizationEvent)
	require.True(t, ok)
	assert.ErrorIs(t, oe.Err, model.ErrInvalidRequest)
}

func TestOptimizeSchedule_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestScheduler(t).OptimizeSchedule(ctx, fixture.Reference(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolutionLifecycle(t *testing.T) {
	bus := eventbus.New(eventbus.WithBuffer(32))
	defer bus.Close()
	sub := bus.Subscribe()
	store := history.NewMemoryStore()
	s := newTestScheduler(t, WithEventBus(bus), WithHistoryStore(store))
	ctx := context.Background()

	res, err := s.OptimizeSchedule(ctx, withSpareTeam())
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, model.ConflictDoubleBooking, c.Type)
	assert.True(t, c.AutoResolvable)
	assert.Equal(t, "reassign job J2 from T1 to T3", c.SuggestedResolution)
	before, _ := s.Snapshot()

	stream, stop := s.SubscribeHistory()
	defer stop()

	prop, err := s.ProposeResolution(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyReassign, prop.Strategy)
	pending, ok := s.Proposal(prop.ID)
	require.True(t, ok)
	assert.Equal(t, prop, pending)

	next, h, err := s.ApplyResolution(ctx, prop, "dispatcher")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccessful, h.Outcome)
	assert.Equal(t, 2, next.Version)
	a, ok := next.Assignment("J2")
	require.True(t, ok)
	assert.Equal(t, "T3", a.LeadID)
	assert.Empty(t, s.Conflicts())
	_, ok = s.Proposal(prop.ID)
	assert.False(t, ok)

	got := <-stream
	assert.Equal(t, h.ID, got.ID)

	restored, err := s.RevertResolution(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Version)
	assert.Equal(t, before.Assignments, restored.Assignments)
	require.Len(t, s.Conflicts(), 1)
	assert.Equal(t, c.ID, s.Conflicts()[0].ID)

	got = <-stream
	assert.Equal(t, model.OutcomeReverted, got.Outcome)

	entries, err := s.History(ctx, history.Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.OutcomeReverted, entries[0].Outcome)
	require.NotNil(t, entries[0].RevertedAt)

	_, err = s.RevertResolution(ctx, h.ID)
	var ire *model.InvalidRevertError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, model.OutcomeReverted, ire.Outcome)

	assert.Equal(t, []string{
		events.TypeOptimization,
		events.TypeConflict,
		events.TypeResolution,
		events.TypeResolution,
		events.TypeResolution,
	}, drain(sub))
}

func TestApplyResolution_ViolationIsRecordedAsFailed(t *testing.T) {
	mon := &captureMonitor{}
	s := newTestScheduler(t, WithMonitor(mon))
	ctx := context.Background()

	res, err := s.OptimizeSchedule(ctx, withSpareTeam())
	require.NoError(t, err)
	prop, err := s.ProposeResolution(ctx, res.Conflicts[0].ID,
		resolution.WithTarget(resolution.ManualTarget{JobID: "J2", LeadID: "T2"}))
	require.NoError(t, err)
	assert.Equal(t, model.StrategyManual, prop.Strategy)

	snap, h, err := s.ApplyResolution(ctx, prop, "dispatcher")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailed, h.Outcome)
	assert.NotEmpty(t, h.Notes)
	assert.Equal(t, 1, snap.Version)
	cur, _ := s.Snapshot()
	assert.Equal(t, 1, cur.Version)

	mon.mu.Lock()
	require.Len(t, mon.errs, 1)
	assert.ErrorIs(t, mon.errs[0], model.ErrConstraintViolation)
	assert.Equal(t, "double_booking", mon.tags[0]["conflict_type"])
	mon.mu.Unlock()

	_, err = s.RevertResolution(ctx, h.ID)
	assert.ErrorIs(t, err, model.ErrInvalidRevert)

	entries, err := s.History(ctx, history.Query{Outcome: model.OutcomeFailed})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestApplyResolution_StaleProposal(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	res, err := s.OptimizeSchedule(ctx, withSpareTeam())
	require.NoError(t, err)
	prop, err := s.ProposeResolution(ctx, res.Conflicts[0].ID)
	require.NoError(t, err)

	_, err = s.OptimizeSchedule(ctx, withSpareTeam())
	require.NoError(t, err)
	_, _, err = s.ApplyResolution(ctx, prop, "dispatcher")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestRejectResolution(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	res, err := s.OptimizeSchedule(ctx, withSpareTeam())
	require.NoError(t, err)
	prop, err := s.ProposeResolution(ctx, res.Conflicts[0].ID)
	require.NoError(t, err)

	rejected, err := s.RejectResolution(ctx, prop.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateRejected, rejected.State)
	_, ok := s.Proposal(prop.ID)
	assert.False(t, ok)

	_, err = s.RejectResolution(ctx, prop.ID)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestSessionErrors(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	_, err := s.ProposeResolution(ctx, "c-1")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
	_, _, err = s.ApplyResolution(ctx, model.ConflictResolution{}, "x")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
	_, err = s.RevertResolution(ctx, "h-1")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	_, err = s.OptimizeSchedule(ctx, fixture.Reference(2))
	require.NoError(t, err)
	_, err = s.ProposeResolution(ctx, "c-unknown")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
	_, err = s.RevertResolution(ctx, "h-unknown")
	assert.True(t, errors.Is(err, model.ErrInvalidRevert))
}
