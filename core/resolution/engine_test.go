package resolution

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/conflict"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/fixture"
)

var now = time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	e := NewEngine(geo.Estimator{})
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return e
}

func assign(req model.SchedulingRequest, jobID, lead string) model.OptimizedAssignment {
	for _, j := range req.Jobs {
		if j.ID == jobID {
			return model.OptimizedAssignment{JobID: j.ID, LeadID: lead, Start: j.ScheduledStart, End: j.End(), BufferMinutes: req.Constraints.BufferMinutes}
		}
	}
	panic("unknown job " + jobID)
}

func stateOf(req model.SchedulingRequest, version int, as ...model.OptimizedAssignment) State {
	return State{
		Snapshot:    model.NewSnapshot(version, as, now.Add(-time.Hour)),
		Jobs:        req.Jobs,
		Teams:       req.Teams,
		Constraints: req.Constraints,
	}
}

func conflictsOf(st State) []model.SchedulingConflict {
	return conflict.NewDetector(geo.Estimator{}).Detect(st.Snapshot.Assignments, st.Jobs, st.Teams, st.Constraints, now.Add(-30*time.Minute))
}

func TestProposeAndApply_AutoReassign(t *testing.T) {
	req := fixture.Reference(2)
	st := stateOf(req, 1, assign(req, "J3", "T1"))
	cs := conflictsOf(st)
	require.Len(t, cs, 1)
	require.True(t, cs[0].AutoResolvable)

	e := newTestEngine()
	res, err := e.Propose(st, cs[0], At(now))
	require.NoError(t, err)
	assert.Equal(t, model.StrategyReassign, res.Strategy)
	assert.Equal(t, model.StateProposalGenerated, res.State)
	assert.Equal(t, 1, res.BaseVersion)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "T1", res.Changes[0].Before.LeadID)
	assert.Equal(t, "T2", res.Changes[0].After.LeadID)
	assert.Less(t, res.Impact.CostImpact, 0.0)
	assert.Less(t, res.Impact.TimeImpactMinutes, 0)
	assert.Equal(t, model.ImpactNone, res.Impact.CustomerImpact)
	assert.Equal(t, model.ImpactLow, res.Impact.TeamImpact)
	assert.Equal(t, 1, res.Impact.AffectedAssignments)

	next, h, err := e.Apply(st, res, "dispatcher", now)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccessful, h.Outcome)
	assert.Equal(t, 2, next.Version)
	assert.Greater(t, h.Metrics.CostSavings, 0.0)
	assert.Equal(t, 30*time.Minute, h.Metrics.TimeToResolve)
	assert.InDelta(t, 0.2, h.Metrics.CustomerSatisfactionDelta, 1e-9)
	assert.Equal(t, 2, h.Metrics.AffectedTeamMembers)
	a, ok := next.Assignment("J3")
	require.True(t, ok)
	assert.Equal(t, "T2", a.LeadID)
	assert.Empty(t, conflictsOf(State{Snapshot: next, Jobs: st.Jobs, Teams: st.Teams, Constraints: st.Constraints}))

	orig, _ := st.Snapshot.Assignment("J3")
	assert.Equal(t, "T1", orig.LeadID, "the original snapshot is never mutated")
}

func TestPropose_StubRequiresInput(t *testing.T) {
	req := fixture.DoubleBooked()
	st := stateOf(req, 1, req.ExistingAssignments...)
	cs := conflictsOf(st)
	require.Len(t, cs, 1)
	require.False(t, cs[0].AutoResolvable)

	e := newTestEngine()
	res, err := e.Propose(st, cs[0], At(now))
	require.NoError(t, err)
	assert.True(t, res.RequiresInput)
	assert.Equal(t, model.StateDetected, res.State)
	assert.Empty(t, res.Changes)

	_, _, err = e.Apply(st, res, "dispatcher", now)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestPropose_ManualTarget(t *testing.T) {
	req := fixture.DoubleBooked()
	st := stateOf(req, 1, req.ExistingAssignments...)
	c := conflictsOf(st)[0]
	e := newTestEngine()

	start := fixture.At(13, 0)
	res, err := e.Propose(st, c, At(now), WithTarget(ManualTarget{JobID: "J2", LeadID: "T1", Start: &start}))
	require.NoError(t, err)
	assert.Equal(t, model.StrategyManual, res.Strategy)
	assert.Equal(t, model.ImpactMedium, res.Impact.CustomerImpact, "three hour shift on the same day")

	next, h, err := e.Apply(st, res, "planner", now)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccessful, h.Outcome)
	assert.Empty(t, conflictsOf(State{Snapshot: next, Jobs: st.Jobs, Teams: st.Teams, Constraints: st.Constraints}))

	_, err = e.Propose(st, c, WithTarget(ManualTarget{JobID: "J2", LeadID: "nobody"}))
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestApply_ViolationKeepsOriginalSnapshot(t *testing.T) {
	req := fixture.DoubleBooked()
	st := stateOf(req, 1, req.ExistingAssignments...)
	c := conflictsOf(st)[0]
	e := newTestEngine()

	start := fixture.At(10, 30)
	res, err := e.Propose(st, c, At(now), WithTarget(ManualTarget{JobID: "J2", LeadID: "T1", Start: &start}))
	require.NoError(t, err)

	got, h, err := e.Apply(st, res, "planner", now)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailed, h.Outcome)
	assert.Contains(t, h.Notes, "overlap")
	assert.Equal(t, st.Snapshot, got)
}

func TestPropose_Unassign(t *testing.T) {
	req := fixture.DoubleBooked()
	st := stateOf(req, 1, req.ExistingAssignments...)
	c := conflictsOf(st)[0]
	e := newTestEngine()

	res, err := e.Propose(st, c, At(now), WithStrategy(model.StrategyUnassign))
	require.NoError(t, err)
	assert.Equal(t, model.StrategyUnassign, res.Strategy)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "J2", res.Changes[0].JobID)
	assert.Nil(t, res.Changes[0].After)
	assert.Equal(t, model.ImpactHigh, res.Impact.CustomerImpact)

	next, h, err := e.Apply(st, res, "planner", now)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccessful, h.Outcome)
	assert.Len(t, next.Assignments, 1)
	assert.InDelta(t, 0.4-0.5, h.Metrics.CustomerSatisfactionDelta, 1e-9)

	_, err = e.Propose(st, c, WithStrategy("teleport"))
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestApply_RejectsStaleProposal(t *testing.T) {
	req := fixture.Reference(2)
	st := stateOf(req, 1, assign(req, "J3", "T1"))
	e := newTestEngine()
	res, err := e.Propose(st, conflictsOf(st)[0], At(now))
	require.NoError(t, err)

	st.Snapshot.Version = 2
	_, _, err = e.Apply(st, res, "planner", now)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestLedger_RevertRestoresAndCascades(t *testing.T) {
	req := fixture.Reference(2)
	req.Teams = append(req.Teams, model.TeamMember{ID: "T3", Region: "A", Home: fixture.Boston, CapacityPerDay: 2})
	st := stateOf(req, 1, assign(req, "J1", "T2"), assign(req, "J3", "T1"))
	v1 := st.Snapshot
	e := newTestEngine()
	ledger := NewLedger()

	apply := func(st State, jobID string) (State, model.ConflictResolutionHistory) {
		var target model.SchedulingConflict
		for _, c := range conflictsOf(st) {
			if c.JobIDs[0] == jobID {
				target = c
			}
		}
		require.True(t, target.AutoResolvable, "conflict on %s should be auto-resolvable", jobID)
		res, err := e.Propose(st, target, At(now))
		require.NoError(t, err)
		next, h, err := e.Apply(st, res, "planner", now)
		require.NoError(t, err)
		require.Equal(t, model.OutcomeSuccessful, h.Outcome)
		ledger.Record(h, st.Snapshot)
		st.Snapshot = next
		return st, h
	}

	st, h1 := apply(st, "J1")
	st, h2 := apply(st, "J3")
	assert.Equal(t, 3, st.Snapshot.Version)
	assert.Empty(t, conflictsOf(st))

	restored, updated, err := ledger.Revert(h1.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, v1.Assignments, restored.Assignments)
	require.Len(t, updated, 2)
	assert.Equal(t, h1.ID, updated[0].ID)
	assert.Equal(t, h2.ID, updated[1].ID)
	for _, h := range ledger.Entries() {
		assert.Equal(t, model.OutcomeReverted, h.Outcome)
		require.NotNil(t, h.RevertedAt)
	}

	_, _, err = ledger.Revert(h2.ID, now)
	var ire *model.InvalidRevertError
	require.True(t, errors.As(err, &ire))
	assert.Equal(t, model.OutcomeReverted, ire.Outcome)

	_, _, err = ledger.Revert("missing", now)
	assert.ErrorIs(t, err, model.ErrInvalidRevert)
}

func TestLedger_RevertFailedEntry(t *testing.T) {
	l := NewLedger()
	l.Record(model.ConflictResolutionHistory{ID: "h1", Outcome: model.OutcomeFailed}, model.AssignmentSnapshot{})
	_, _, err := l.Revert("h1", now)
	var ire *model.InvalidRevertError
	require.True(t, errors.As(err, &ire))
	assert.Equal(t, model.OutcomeFailed, ire.Outcome)
}

func TestImpactTiers(t *testing.T) {
	base := model.OptimizedAssignment{Start: fixture.At(9, 0), End: fixture.At(11, 0)}
	shift := func(d time.Duration) *model.OptimizedAssignment {
		a := base
		a.Start = a.Start.Add(d)
		return &a
	}
	assert.Equal(t, model.ImpactNone, customerTier(&base, shift(0)))
	assert.Equal(t, model.ImpactLow, customerTier(&base, shift(90*time.Minute)))
	assert.Equal(t, model.ImpactMedium, customerTier(&base, shift(2*time.Hour)))
	assert.Equal(t, model.ImpactMedium, customerTier(&base, shift(3*24*time.Hour)))
	assert.Equal(t, model.ImpactHigh, customerTier(&base, shift(8*24*time.Hour)))
	assert.Equal(t, model.ImpactHigh, customerTier(&base, nil))
	assert.Equal(t, model.ImpactNone, customerTier(nil, &base))

	assert.Equal(t, model.ImpactNone, teamTier(0))
	assert.Equal(t, model.ImpactLow, teamTier(2))
	assert.Equal(t, model.ImpactMedium, teamTier(4))
	assert.Equal(t, model.ImpactHigh, teamTier(5))
}
