package model

import (
	"fmt"
	"time"
)

// OptimizationGoal selects the primary ranking key of the optimizer.
type OptimizationGoal string

const (
	GoalMinimizeTravel  OptimizationGoal = "minimize_travel"
	GoalBalanceWorkload OptimizationGoal = "balance_workload"
)

func (g OptimizationGoal) Valid() bool {
	return g == "" || g == GoalMinimizeTravel || g == GoalBalanceWorkload
}

// DefaultClusterRadiusMiles groups region-less jobs when no radius is set.
const DefaultClusterRadiusMiles = 25.0

// WorkingHours bounds every shift in local clock time ("HH:MM").
type WorkingHours struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// IsZero reports whether no working hours are configured.
func (w WorkingHours) IsZero() bool { return w.Start == "" && w.End == "" }

// Shift returns the working-hour window on the date of day, in day's location.
// ok is false when no working hours are configured.
func (w WorkingHours) Shift(day time.Time) (TimeWindow, bool, error) {
	if w.IsZero() {
		return TimeWindow{}, false, nil
	}
	start, err := parseClock(w.Start)
	if err != nil {
		return TimeWindow{}, false, fmt.Errorf("working hours start: %w", err)
	}
	end, err := parseClock(w.End)
	if err != nil {
		return TimeWindow{}, false, fmt.Errorf("working hours end: %w", err)
	}
	y, m, d := day.Date()
	loc := day.Location()
	return TimeWindow{
		Start: time.Date(y, m, d, start.Hour(), start.Minute(), 0, 0, loc),
		End:   time.Date(y, m, d, end.Hour(), end.Minute(), 0, 0, loc),
	}, true, nil
}

func parseClock(s string) (time.Time, error) {
	return time.Parse("15:04", s)
}

// Validate checks that both bounds parse and start precedes end.
func (w WorkingHours) Validate() error {
	if w.IsZero() {
		return nil
	}
	start, err := parseClock(w.Start)
	if err != nil {
		return Invalid("constraints.working_hours.start", "%v", err)
	}
	end, err := parseClock(w.End)
	if err != nil {
		return Invalid("constraints.working_hours.end", "%v", err)
	}
	if !end.After(start) {
		return Invalid("constraints.working_hours", "end %s must be after start %s", w.End, w.Start)
	}
	return nil
}

// TeamPreference overrides limits for a single team member. Zero values
// inherit the global constraint.
type TeamPreference struct {
	MaxJobsPerDay     int     `json:"max_jobs_per_day,omitempty"`
	MaxTravelDistance float64 `json:"max_travel_distance,omitempty"`
}

// Constraints are the hard rules of one optimization run.
type Constraints struct {
	MaxJobsPerDay           int                       `json:"max_jobs_per_day,omitempty"`
	MaxTravelDistance       float64                   `json:"max_travel_distance,omitempty"`
	BufferMinutes           int                       `json:"buffer_minutes,omitempty"`
	WorkingHours            WorkingHours              `json:"working_hours,omitempty"`
	RequiredSpecializations map[string][]string       `json:"required_specializations,omitempty"`
	HardDeadlines           map[string]time.Time      `json:"hard_deadlines,omitempty"`
	TeamPreferences         map[string]TeamPreference `json:"team_preferences,omitempty"`
}

// Buffer returns the inter-job buffer.
func (c Constraints) Buffer() time.Duration {
	return time.Duration(c.BufferMinutes) * time.Minute
}

// MaxTravelFor returns the effective travel limit for a team: the tighter of
// the global limit and the team override. Zero means unlimited.
func (c Constraints) MaxTravelFor(teamID string) float64 {
	limit := c.MaxTravelDistance
	if p, ok := c.TeamPreferences[teamID]; ok && p.MaxTravelDistance > 0 {
		if limit == 0 || p.MaxTravelDistance < limit {
			limit = p.MaxTravelDistance
		}
	}
	return limit
}

// CapacityFor returns the effective per-day capacity of a member: the minimum
// of the non-zero values among its own capacity, the global limit and its
// override.
func (c Constraints) CapacityFor(t TeamMember) int {
	capacity := 0
	for _, v := range []int{t.CapacityPerDay, c.MaxJobsPerDay, c.TeamPreferences[t.ID].MaxJobsPerDay} {
		if v > 0 && (capacity == 0 || v < capacity) {
			capacity = v
		}
	}
	return capacity
}

// RequiredFor merges the job's own tags with the per-job constraint tags.
func (c Constraints) RequiredFor(j Job) []string {
	extra := c.RequiredSpecializations[j.ID]
	if len(extra) == 0 {
		return j.RequiredSpecializations
	}
	seen := make(map[string]struct{}, len(j.RequiredSpecializations)+len(extra))
	out := make([]string, 0, len(j.RequiredSpecializations)+len(extra))
	for _, s := range append(append([]string{}, j.RequiredSpecializations...), extra...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// DeadlineFor returns the earliest of the job deadline and the hard deadline.
func (c Constraints) DeadlineFor(j Job) (time.Time, bool) {
	var dl time.Time
	if j.Deadline != nil {
		dl = *j.Deadline
	}
	if hd, ok := c.HardDeadlines[j.ID]; ok && (dl.IsZero() || hd.Before(dl)) {
		dl = hd
	}
	return dl, !dl.IsZero()
}

// Validate checks numeric ranges and the working-hour format.
func (c Constraints) Validate() error {
	if c.MaxJobsPerDay < 0 {
		return Invalid("constraints.max_jobs_per_day", "must not be negative")
	}
	if c.MaxTravelDistance < 0 {
		return Invalid("constraints.max_travel_distance", "must not be negative")
	}
	if c.BufferMinutes < 0 {
		return Invalid("constraints.buffer_minutes", "must not be negative")
	}
	for id, p := range c.TeamPreferences {
		if p.MaxJobsPerDay < 0 || p.MaxTravelDistance < 0 {
			return Invalid("constraints.team_preferences."+id, "limits must not be negative")
		}
	}
	return c.WorkingHours.Validate()
}

// Preferences tune ranking without adding hard rules.
type Preferences struct {
	Goal                     OptimizationGoal `json:"goal,omitempty"`
	PrioritizeLeadContinuity bool             `json:"prioritize_lead_continuity,omitempty"`
	MinimizeTeamSplits       bool             `json:"minimize_team_splits,omitempty"`
	GeographicClustering     bool             `json:"geographic_clustering,omitempty"`
	ClusterRadiusMiles       float64          `json:"cluster_radius_miles,omitempty"`
}

// Radius returns the clustering radius, defaulting to DefaultClusterRadiusMiles.
func (p Preferences) Radius() float64 {
	if p.ClusterRadiusMiles > 0 {
		return p.ClusterRadiusMiles
	}
	return DefaultClusterRadiusMiles
}

func (p Preferences) Validate() error {
	if !p.Goal.Valid() {
		return Invalid("preferences.goal", "unknown goal %q", p.Goal)
	}
	if p.ClusterRadiusMiles < 0 {
		return Invalid("preferences.cluster_radius_miles", "must not be negative")
	}
	return nil
}
