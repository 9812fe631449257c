package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/fixture"
)

var detectedAt = time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

func assign(req model.SchedulingRequest, jobID, lead string) model.OptimizedAssignment {
	for _, j := range req.Jobs {
		if j.ID == jobID {
			return model.OptimizedAssignment{JobID: j.ID, LeadID: lead, Start: j.ScheduledStart, End: j.End()}
		}
	}
	panic("unknown job " + jobID)
}

func detect(req model.SchedulingRequest, as []model.OptimizedAssignment) []model.SchedulingConflict {
	return NewDetector(geo.NewEstimator(0)).Detect(as, req.Jobs, req.Teams, req.Constraints, detectedAt)
}

func TestDetect_NoConflictsOnCleanPlan(t *testing.T) {
	req := fixture.Reference(2)
	as := []model.OptimizedAssignment{assign(req, "J1", "T1"), assign(req, "J2", "T1"), assign(req, "J3", "T2")}
	assert.Empty(t, detect(req, as))
}

func TestDetect_DoubleBooking(t *testing.T) {
	req := fixture.DoubleBooked()
	as := append(append([]model.OptimizedAssignment(nil), req.ExistingAssignments...), assign(req, "J3", "T2"))

	got := detect(req, as)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, model.ConflictDoubleBooking, c.Type)
	assert.Equal(t, model.SeverityCritical, c.Severity)
	assert.Equal(t, []string{"J1", "J2"}, c.JobIDs)
	assert.Equal(t, []string{"T1"}, c.TeamIDs)
	assert.Equal(t, "2025-03-10", c.Date)
	assert.Equal(t, detectedAt, c.DetectedAt)
	assert.False(t, c.AutoResolvable)
	assert.Equal(t, model.ConflictID(c.Type, c.Date, c.TeamIDs, c.JobIDs), c.ID)
}

func TestDetect_BufferCreatesDoubleBooking(t *testing.T) {
	req := fixture.Reference(2)
	req.Jobs[1].ScheduledStart = fixture.At(11, 15)
	as := []model.OptimizedAssignment{assign(req, "J1", "T1"), assign(req, "J2", "T1")}
	got := detect(req, as)
	require.Len(t, got, 1)
	assert.Equal(t, model.ConflictDoubleBooking, got[0].Type)

	req.Constraints.BufferMinutes = 0
	assert.Empty(t, detect(req, as))
}

func TestDetect_Overload(t *testing.T) {
	req := fixture.Reference(1)
	as := []model.OptimizedAssignment{assign(req, "J1", "T1"), assign(req, "J2", "T1")}

	got := detect(req, as)
	require.Len(t, got, 1)
	assert.Equal(t, model.ConflictOverloadedTeam, got[0].Type)
	assert.Equal(t, model.SeverityHigh, got[0].Severity)
	assert.False(t, got[0].AutoResolvable)

	req.Teams = append(req.Teams, model.TeamMember{ID: "T3", Region: "A", Home: fixture.Boston, CapacityPerDay: 1})
	got = detect(req, as)
	require.Len(t, got, 1)
	assert.True(t, got[0].AutoResolvable)
	assert.Equal(t, "reassign job J2 from T1 to T3", got[0].SuggestedResolution)
}

func TestDetect_Unavailable(t *testing.T) {
	req := fixture.Reference(2)
	req.Teams[0].Availability = []model.TimeWindow{{Start: fixture.At(12, 0), End: fixture.At(18, 0)}}
	as := []model.OptimizedAssignment{assign(req, "J1", "T1"), assign(req, "J2", "T1"), assign(req, "J3", "ghost")}

	got := detect(req, as)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, model.ConflictUnavailableTeam, c.Type)
		assert.Equal(t, model.SeverityHigh, c.Severity)
	}
	assert.Equal(t, []string{"J1"}, got[0].JobIDs)
	assert.Equal(t, []string{"J3"}, got[1].JobIDs)
	assert.Contains(t, got[1].Description, "unknown team member ghost")
	assert.True(t, got[1].AutoResolvable, "T2 can take J3")
}

func TestDetect_TravelViolation(t *testing.T) {
	req := fixture.Reference(2)
	as := []model.OptimizedAssignment{assign(req, "J3", "T1")}

	got := detect(req, as)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, model.ConflictTravelDistanceViolation, c.Type)
	assert.Equal(t, model.SeverityMedium, c.Severity)
	assert.True(t, c.AutoResolvable)
	assert.Equal(t, "reassign job J3 from T1 to T2", c.SuggestedResolution)

	req.Constraints.TeamPreferences = map[string]model.TeamPreference{"T2": {MaxTravelDistance: 500}}
	req.Constraints.MaxTravelDistance = 0
	assert.Empty(t, detect(req, as))
}

func TestDetect_SpecializationMismatch(t *testing.T) {
	req := fixture.Reference(2)
	req.Jobs[0].RequiredSpecializations = []string{"roof"}
	as := []model.OptimizedAssignment{assign(req, "J1", "T1")}

	got := detect(req, as)
	require.Len(t, got, 1)
	assert.Equal(t, model.ConflictSpecializationMismatch, got[0].Type)
	assert.Contains(t, got[0].Description, "roof")
	assert.False(t, got[0].AutoResolvable)
}

func TestDetect_SpecializationBindsLeadOnly(t *testing.T) {
	req := fixture.Reference(2)
	req.Jobs[0].RequiredSpecializations = []string{"roof"}
	req.Teams[0].Specializations = []string{"roof"}
	req.Teams = append(req.Teams, model.TeamMember{ID: "A1", Role: model.RoleAssistant, Region: "A", Home: fixture.Boston, CapacityPerDay: 1})
	a := assign(req, "J1", "T1")
	a.AssistantID = "A1"

	assert.Empty(t, detect(req, []model.OptimizedAssignment{a}))
}

func TestDetect_CompletenessAndOrder(t *testing.T) {
	req := fixture.Reference(1)
	req.Jobs[1].ScheduledStart = fixture.At(10, 0)
	req.Jobs[0].RequiredSpecializations = []string{"roof"}
	as := []model.OptimizedAssignment{
		assign(req, "J1", "T1"),
		assign(req, "J2", "T1"),
		assign(req, "J3", "ghost"),
	}
	got := detect(req, as)

	counts := map[model.ConflictType]int{}
	for _, c := range got {
		counts[c.Type]++
	}
	assert.Equal(t, map[model.ConflictType]int{
		model.ConflictDoubleBooking:          1,
		model.ConflictOverloadedTeam:         1,
		model.ConflictUnavailableTeam:        1,
		model.ConflictSpecializationMismatch: 1,
	}, counts)
	assert.Equal(t, model.ConflictDoubleBooking, got[0].Type)
	assert.Equal(t, got, detect(req, as))
}

func TestMovable(t *testing.T) {
	req := fixture.DoubleBooked()
	c := model.SchedulingConflict{Type: model.ConflictDoubleBooking, JobIDs: []string{"J1", "J2"}, TeamIDs: []string{"T1"}}
	assert.Equal(t, []string{"J2"}, Movable(c, req.ExistingAssignments, req.JobIndex(), req.Constraints, req.TeamIndex()))

	req = fixture.Reference(1)
	as := []model.OptimizedAssignment{assign(req, "J1", "T1"), assign(req, "J2", "T1")}
	c = model.SchedulingConflict{Type: model.ConflictOverloadedTeam, JobIDs: []string{"J1", "J2"}, TeamIDs: []string{"T1"}}
	assert.Equal(t, []string{"J2"}, Movable(c, as, req.JobIndex(), req.Constraints, req.TeamIndex()))
}
