package optimizer

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/availability"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Candidate is a member that passed every hard filter for a job, with the
// values used to rank it.
type Candidate struct {
	TeamID string
	// Cost is the marginal insertion cost d(p,j)+d(j,s)-d(p,s) in miles.
	Cost       float64
	LoadRatio  float64
	Variance   float64
	Continuity bool
	Paired     bool
	InMiles    float64
	OutMiles   float64
	InMinutes  int
	PrevJobID  string
}

// filter order; a later stage is a more advanced rejection.
var stages = []string{
	model.ReasonRegion,
	model.ReasonCapacity,
	model.ReasonSpecialization,
	model.ReasonAvailability,
	model.ReasonWorkingHours,
	model.ReasonOverlap,
	model.ReasonDistance,
}

func stageRank(reason string) int {
	for i, s := range stages {
		if s == reason {
			return i + 1
		}
	}
	return 0
}

// advance keeps the most advanced of two rejection reasons.
func advance(current, next string) string {
	if stageRank(next) > stageRank(current) {
		return next
	}
	return current
}

// leg returns the distance and time between two optional coordinates; an
// unknown side costs nothing.
func (p *Planner) leg(from, to *model.Coordinate) (float64, int) {
	if from == nil || to == nil {
		return 0, 0
	}
	miles, minutes, err := p.est.DistanceAndTime(*from, *to)
	if err != nil {
		return 0, 0
	}
	return miles, minutes
}

func regionRestricted(j model.Job, pool []model.TeamMember, prefs model.Preferences) bool {
	if !prefs.GeographicClustering || j.Region == "" {
		return false
	}
	for _, m := range pool {
		if m.Region == j.Region {
			return true
		}
	}
	return false
}

// evaluate runs the hard filters for member m and returns the candidate or
// the rejection reason.
func (p *Planner) evaluate(j model.Job, m model.TeamMember, role model.Role, pool []model.TeamMember, restrict bool) (Candidate, string) {
	date := j.Date()
	if restrict && m.Region != j.Region {
		return Candidate{}, model.ReasonRegion
	}
	if p.idx.Remaining(m.ID, date) <= 0 {
		return Candidate{}, model.ReasonCapacity
	}
	if role.IsLead() && !m.HasSpecializations(p.c.RequiredFor(j)) {
		return Candidate{}, model.ReasonSpecialization
	}
	if !m.AvailableFor(j.Window()) {
		return Candidate{}, model.ReasonAvailability
	}
	if !p.withinShift(j) {
		return Candidate{}, model.ReasonWorkingHours
	}

	buffer := p.c.Buffer()
	for _, b := range p.idx.Busy(m.ID, date) {
		if j.ScheduledStart.Before(b.End.Add(buffer)) && b.Start.Before(j.End().Add(buffer)) {
			return Candidate{}, model.ReasonOverlap
		}
	}
	pred, hasPred := p.idx.Predecessor(m.ID, j.ScheduledStart)
	succ, hasSucc := p.idx.Successor(m.ID, j.ScheduledStart)

	origin := m.Home
	if hasPred {
		origin = pred.Location
	}
	inMiles, inMinutes := p.leg(origin, j.Location)
	var outMiles, psMiles float64
	if hasSucc {
		var outMinutes int
		outMiles, outMinutes = p.leg(j.Location, succ.Location)
		psMiles, _ = p.leg(origin, succ.Location)
		if j.End().Add(buffer).Add(minutes(outMinutes)).After(succ.Start) {
			return Candidate{}, model.ReasonOverlap
		}
	}
	if hasPred && pred.End.Add(buffer).Add(minutes(inMinutes)).After(j.ScheduledStart) {
		return Candidate{}, model.ReasonOverlap
	}

	limit := p.c.MaxTravelFor(m.ID)
	if limit == 0 {
		limit = math.Inf(1)
	}
	limit = math.Min(limit, p.travelCap)
	if inMiles > limit || (hasSucc && outMiles > limit) {
		return Candidate{}, model.ReasonDistance
	}

	c := Candidate{
		TeamID:    m.ID,
		Cost:      inMiles + outMiles - psMiles,
		InMiles:   inMiles,
		OutMiles:  outMiles,
		InMinutes: inMinutes,
	}
	if hasPred {
		c.PrevJobID = pred.JobID
	}
	if capacity := p.c.CapacityFor(m); capacity > 0 {
		c.LoadRatio = float64(p.idx.Load(m.ID, date)+1) / float64(capacity)
	}
	c.Variance = p.varianceWith(m.ID, date, pool)
	if role.IsLead() {
		c.Continuity = j.LeadID == m.ID || p.servesCustomer(m.ID, j.CustomerID)
	}
	return c, ""
}

func (p *Planner) withinShift(j model.Job) bool {
	shift, ok, err := p.c.WorkingHours.Shift(j.ScheduledStart)
	if err != nil || !ok {
		return err == nil
	}
	return !j.ScheduledStart.Before(shift.Start) && !j.End().Add(p.c.Buffer()).After(shift.End)
}

// varianceWith is the population variance of day loads across pool after
// adding one job to teamID.
func (p *Planner) varianceWith(teamID, date string, pool []model.TeamMember) float64 {
	if len(pool) < 2 {
		return 0
	}
	loads := make([]float64, len(pool))
	for i, m := range pool {
		loads[i] = float64(p.idx.Load(m.ID, date))
		if m.ID == teamID {
			loads[i]++
		}
	}
	return stat.PopVariance(loads, nil)
}

func (p *Planner) servesCustomer(teamID, customerID string) bool {
	if customerID == "" {
		return false
	}
	_, ok := p.customers[customerID][teamID]
	return ok
}

const costEpsilon = 1e-9

// better reports whether a ranks ahead of b.
func (p *Planner) better(a, b Candidate) bool {
	if p.prefs.Goal == model.GoalBalanceWorkload && a.LoadRatio != b.LoadRatio {
		return a.LoadRatio < b.LoadRatio
	}
	if d := a.Cost - b.Cost; d < -costEpsilon || d > costEpsilon {
		return d < 0
	}
	if p.prefs.PrioritizeLeadContinuity && a.Continuity != b.Continuity {
		return a.Continuity
	}
	if p.prefs.MinimizeTeamSplits && a.Variance != b.Variance {
		return a.Variance < b.Variance
	}
	return a.TeamID < b.TeamID
}

// betterAssistant ranks assistants, preferring the one already paired with
// the lead that day when team splits are minimized.
func (p *Planner) betterAssistant(a, b Candidate) bool {
	if p.prefs.MinimizeTeamSplits && a.Paired != b.Paired {
		return a.Paired
	}
	return p.better(a, b)
}

func reserveInterval(idx *availability.Index, teamID string, j model.Job) {
	idx.Reserve(teamID, availability.Interval{JobID: j.ID, Start: j.ScheduledStart, End: j.End(), Location: j.Location})
}
