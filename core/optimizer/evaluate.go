package optimizer

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/availability"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

type routeKey struct {
	lead string
	date string
}

// routes groups assignment indexes by lead and date, each ordered by start.
func routes(as []model.OptimizedAssignment) map[routeKey][]int {
	out := make(map[routeKey][]int)
	for i, a := range as {
		k := routeKey{lead: a.LeadID, date: a.Date()}
		out[k] = append(out[k], i)
	}
	for _, idxs := range out {
		sort.SliceStable(idxs, func(x, y int) bool {
			a, b := as[idxs[x]], as[idxs[y]]
			if !a.Start.Equal(b.Start) {
				return a.Start.Before(b.Start)
			}
			return a.JobID < b.JobID
		})
	}
	return out
}

// Rechain returns a copy of as with travel legs, chain pointers and scores
// recomputed from each lead's day route. The input slice is not modified.
func (p *Planner) Rechain(as []model.OptimizedAssignment) []model.OptimizedAssignment {
	out := make([]model.OptimizedAssignment, len(as))
	copy(out, as)
	load := make(map[routeKey]int)
	for _, a := range out {
		for _, m := range a.Members() {
			load[routeKey{lead: m, date: a.Date()}]++
		}
	}
	for k, idxs := range routes(out) {
		origin := p.members[k.lead].Home
		prev := ""
		for _, i := range idxs {
			loc := p.jobs[out[i].JobID].Location
			miles, mins := p.leg(origin, loc)
			out[i].EstimatedTravelDistance = miles
			out[i].EstimatedTravelMinutes = mins
			out[i].PreviousJobID = prev
			origin = loc
			prev = out[i].JobID
		}
	}

	legsByCluster := make(map[string][]float64)
	for _, a := range out {
		key := p.clusterOf[a.JobID]
		legsByCluster[key] = append(legsByCluster[key], a.EstimatedTravelDistance)
	}
	medians := make(map[string]float64, len(legsByCluster))
	for key, legs := range legsByCluster {
		sort.Float64s(legs)
		medians[key] = stat.Quantile(0.5, stat.Empirical, legs, nil)
	}
	for i := range out {
		d := out[i].EstimatedTravelDistance
		m := medians[p.clusterOf[out[i].JobID]]
		eff := 1 / (1 + d)
		if m > 0 {
			eff = m / (m + d)
		}
		out[i].EfficiencyScore = clampScore(eff)

		capacity := 0
		if member, ok := p.members[out[i].LeadID]; ok {
			capacity = p.c.CapacityFor(member)
		}
		w := 1.0
		if capacity > 0 {
			w = float64(load[routeKey{lead: out[i].LeadID, date: out[i].Date()}]) / float64(capacity)
		}
		out[i].WorkloadScore = clampScore(w)
	}
	return out
}

func clampScore(v float64) model.Score {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return model.Score(v)
}

// Evaluate computes the metrics of an assignment set whose travel fields are
// already chained. unassigned is reported as is.
func (p *Planner) Evaluate(as []model.OptimizedAssignment, unassigned int) model.OptimizationMetrics {
	m := model.OptimizationMetrics{
		AssignedJobs:   len(as),
		UnassignedJobs: unassigned,
		TotalCapacity:  p.idx.TotalSlots(),
	}
	slots := make(map[string]int, len(p.members))
	used := 0
	for _, a := range as {
		m.TotalTravelDistance += a.EstimatedTravelDistance
		m.TotalTravelMinutes += a.EstimatedTravelMinutes
		for _, id := range a.Members() {
			if _, ok := p.members[id]; ok {
				slots[id]++
				used++
			}
		}
	}
	if m.TotalCapacity > 0 {
		m.UtilizationRate = float64(used) / float64(m.TotalCapacity)
	}
	if n := len(p.members); n > 0 {
		counts := make([]float64, 0, n)
		ids := make([]string, 0, n)
		for id := range p.members {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			counts = append(counts, float64(slots[id]))
		}
		m.AverageJobsPerMember = float64(used) / float64(n)
		if n > 1 {
			m.WorkloadVariance = stat.PopVariance(counts, nil)
		}
	}
	m.GeographicEfficiency = p.geographicEfficiency(as, m.TotalTravelDistance)
	return m
}

// geographicEfficiency compares actual travel to a naive worst case where
// every job is reached from the farthest origin among team homes and the
// other jobs of the same day.
func (p *Planner) geographicEfficiency(as []model.OptimizedAssignment, actual float64) float64 {
	var homes []*model.Coordinate
	ids := make([]string, 0, len(p.members))
	for id := range p.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if h := p.members[id].Home; h != nil {
			homes = append(homes, h)
		}
	}
	byDate := make(map[string][]*model.Coordinate)
	for _, a := range as {
		if loc := p.jobs[a.JobID].Location; loc != nil {
			byDate[a.Date()] = append(byDate[a.Date()], loc)
		}
	}
	baseline := 0.0
	for _, a := range as {
		loc := p.jobs[a.JobID].Location
		if loc == nil {
			continue
		}
		worst := 0.0
		for _, o := range append(append([]*model.Coordinate(nil), homes...), byDate[a.Date()]...) {
			if d, _ := p.leg(o, loc); d > worst {
				worst = d
			}
		}
		baseline += worst
	}
	if baseline == 0 {
		return 1
	}
	eff := 1 - actual/baseline
	if eff < 0 {
		return 0
	}
	return eff
}

// Validate checks the assignments of jobIDs inside the snapshot as against
// every hard constraint and returns the first violation.
func (p *Planner) Validate(as []model.OptimizedAssignment, jobIDs []string) error {
	if err := model.CheckUnique(as); err != nil {
		return &model.ConstraintViolationError{Rule: "unique", Detail: err.Error()}
	}
	chained := p.Rechain(as)
	byJob := make(map[string]int, len(chained))
	for i, a := range chained {
		byJob[a.JobID] = i
	}
	idx, err := availability.Build(p.teamList(), chained, p.jobs, model.TimeWindow{}, p.c)
	if err != nil {
		return err
	}
	buffer := p.c.Buffer()
	for _, id := range jobIDs {
		i, ok := byJob[id]
		if !ok {
			continue
		}
		a := chained[i]
		j, ok := p.jobs[id]
		if !ok {
			return &model.ConstraintViolationError{JobID: id, Rule: "job", Detail: "unknown job"}
		}
		violation := func(team, rule, format string, args ...any) error {
			return &model.ConstraintViolationError{JobID: id, TeamID: team, Rule: rule, Detail: fmt.Sprintf(format, args...)}
		}
		lead, ok := p.members[a.LeadID]
		if !ok || !lead.Role.IsLead() {
			return violation(a.LeadID, "lead", "lead is unknown or not a lead")
		}
		if missing := lead.MissingSpecializations(p.c.RequiredFor(j)); len(missing) > 0 {
			return violation(a.LeadID, model.ReasonSpecialization, "missing %v", missing)
		}
		if shift, ok, _ := p.c.WorkingHours.Shift(a.Start); ok {
			if a.Start.Before(shift.Start) || a.End.Add(buffer).After(shift.End) {
				return violation(a.LeadID, model.ReasonWorkingHours, "outside %s-%s", p.c.WorkingHours.Start, p.c.WorkingHours.End)
			}
		}
		for _, mid := range a.Members() {
			member, ok := p.members[mid]
			if !ok {
				return violation(mid, "member", "unknown team member")
			}
			if !member.AvailableFor(a.Window()) {
				return violation(mid, model.ReasonAvailability, "not available")
			}
			dc, _ := idx.Day(mid, a.Date())
			if dc.Remaining < 0 {
				return violation(mid, model.ReasonCapacity, "%d jobs for capacity %d", dc.Committed, dc.Capacity)
			}
			for _, b := range dc.Busy {
				if b.JobID == id {
					continue
				}
				if a.Start.Before(b.End.Add(buffer)) && b.Start.Before(a.End.Add(buffer)) {
					return violation(mid, model.ReasonOverlap, "overlaps job %s", b.JobID)
				}
			}
		}
		limit := p.c.MaxTravelFor(a.LeadID)
		if limit > 0 && a.EstimatedTravelDistance > limit {
			return violation(a.LeadID, model.ReasonDistance, "leg %.1f mi exceeds %.1f", a.EstimatedTravelDistance, limit)
		}
		for _, b := range chained {
			if b.PreviousJobID == id && b.LeadID == a.LeadID && limit > 0 && b.EstimatedTravelDistance > limit {
				return violation(a.LeadID, model.ReasonDistance, "leg to %s %.1f mi exceeds %.1f", b.JobID, b.EstimatedTravelDistance, limit)
			}
		}
	}
	return nil
}

func (p *Planner) teamList() []model.TeamMember {
	out := make([]model.TeamMember, 0, len(p.leads)+len(p.assistants))
	out = append(out, p.leads...)
	return append(out, p.assistants...)
}
