package optimizer

import (
	"math"
	"sort"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/availability"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Placement is the chosen lead and optional assistant for a job.
type Placement struct {
	Lead      Candidate
	Assistant *Candidate
}

// Planner evaluates candidate placements against one assignment snapshot.
// The optimizer drives it over a whole request; the conflict detector and the
// resolution engine use it to re-place a handful of jobs. A Planner is not
// safe for concurrent use.
type Planner struct {
	est        geo.Estimator
	c          model.Constraints
	prefs      model.Preferences
	stamp      time.Time
	jobs       map[string]model.Job
	members    map[string]model.TeamMember
	leads      []model.TeamMember
	assistants []model.TeamMember
	idx        *availability.Index
	clusters   []cluster
	clusterOf  map[string]string
	customers  map[string]map[string]struct{}
	pairs      map[string]map[string]struct{}

	// travelCap tightens every member's travel limit during one pass.
	travelCap  float64
	// longestLeg is the longest leg checked for a placement so far, -1 when
	// nothing was placed.
	longestLeg float64
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

// NewPlanner indexes snapshot against the jobs and teams of req. The request
// is assumed valid.
func NewPlanner(req model.SchedulingRequest, snapshot []model.OptimizedAssignment, est geo.Estimator) (*Planner, error) {
	jobs := req.JobIndex()
	window := availability.WindowOf(req.Jobs)
	for _, a := range snapshot {
		if window.Start.IsZero() || a.Start.Before(window.Start) {
			window.Start = a.Start
		}
		if a.End.After(window.End) {
			window.End = a.End
		}
	}
	idx, err := availability.Build(req.Teams, snapshot, jobs, window, req.Constraints)
	if err != nil {
		return nil, err
	}
	p := &Planner{
		est:        est,
		c:          req.Constraints,
		prefs:      req.Preferences,
		stamp:      req.Stamp(),
		jobs:       jobs,
		members:    req.TeamIndex(),
		idx:        idx,
		clusterOf:  make(map[string]string, len(req.Jobs)),
		customers:  make(map[string]map[string]struct{}),
		pairs:      make(map[string]map[string]struct{}),
		travelCap:  math.Inf(1),
		longestLeg: -1,
	}
	for _, t := range req.Teams {
		if t.Role.IsLead() {
			p.leads = append(p.leads, t)
		} else {
			p.assistants = append(p.assistants, t)
		}
	}
	sort.Slice(p.leads, func(i, j int) bool { return p.leads[i].ID < p.leads[j].ID })
	sort.Slice(p.assistants, func(i, j int) bool { return p.assistants[i].ID < p.assistants[j].ID })

	p.clusters = buildClusters(req.Jobs, req.Preferences)
	for _, c := range p.clusters {
		for _, j := range c.Jobs {
			p.clusterOf[j.ID] = c.Key
		}
	}
	for _, a := range snapshot {
		p.remember(jobs[a.JobID], a)
	}
	return p, nil
}

func (p *Planner) remember(j model.Job, a model.OptimizedAssignment) {
	if j.CustomerID != "" {
		if p.customers[j.CustomerID] == nil {
			p.customers[j.CustomerID] = make(map[string]struct{})
		}
		p.customers[j.CustomerID][a.LeadID] = struct{}{}
	}
	if a.AssistantID != "" {
		key := a.LeadID + "|" + a.Date()
		if p.pairs[key] == nil {
			p.pairs[key] = make(map[string]struct{})
		}
		p.pairs[key][a.AssistantID] = struct{}{}
	}
}

// Index exposes the availability index the planner works on.
func (p *Planner) Index() *availability.Index { return p.idx }

// Candidates returns every member of role passing the hard filters for j,
// best first, or the most advanced rejection reason when none passes.
func (p *Planner) Candidates(j model.Job, role model.Role, exclude ...string) ([]Candidate, string) {
	pool := p.leads
	if !role.IsLead() {
		pool = p.assistants
	}
	return p.rank(j, role, pool, "", exclude)
}

func (p *Planner) rank(j model.Job, role model.Role, pool []model.TeamMember, lead string, exclude []string) ([]Candidate, string) {
	if len(pool) == 0 {
		return nil, model.ReasonNoCandidate
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	restrict := regionRestricted(j, pool, p.prefs)
	reason := model.ReasonNoCandidate
	var out []Candidate
	for _, m := range pool {
		if _, ok := skip[m.ID]; ok {
			continue
		}
		c, why := p.evaluate(j, m, role, pool, restrict)
		if why != "" {
			reason = advance(reason, why)
			continue
		}
		if lead != "" {
			_, c.Paired = p.pairs[lead+"|"+j.Date()][m.ID]
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, reason
	}
	less := p.better
	if !role.IsLead() {
		less = p.betterAssistant
	}
	sort.SliceStable(out, func(a, b int) bool { return less(out[a], out[b]) })
	return out, ""
}

// NextBest picks the best placement for j, skipping members in exclude. The
// second result is the unassigned reason when no placement exists.
func (p *Planner) NextBest(j model.Job, exclude ...string) (Placement, string) {
	if dl, ok := p.c.DeadlineFor(j); ok && j.End().After(dl) {
		return Placement{}, model.ReasonDeadline
	}
	if j.Location == nil {
		return Placement{}, model.ReasonMissingCoordinate
	}
	leads, reason := p.Candidates(j, model.RoleLead, exclude...)
	if len(leads) == 0 {
		return Placement{}, reason
	}
	if !j.RequiresAssistant {
		return Placement{Lead: leads[0]}, ""
	}
	for _, l := range leads {
		assts, _ := p.rank(j, model.RoleAssistant, p.assistants, l.TeamID, exclude)
		if len(assts) > 0 {
			a := assts[0]
			return Placement{Lead: l, Assistant: &a}, ""
		}
	}
	return Placement{}, model.ReasonNoAssistant
}

// Place commits the placement and returns the new assignment. Travel fields
// are filled by Rechain.
func (p *Planner) Place(j model.Job, pl Placement) model.OptimizedAssignment {
	a := model.OptimizedAssignment{
		JobID:         j.ID,
		LeadID:        pl.Lead.TeamID,
		Start:         j.ScheduledStart,
		End:           j.End(),
		BufferMinutes: p.c.BufferMinutes,
		AssignedAt:    p.stamp,
	}
	reserveInterval(p.idx, a.LeadID, j)
	p.longestLeg = math.Max(p.longestLeg, math.Max(pl.Lead.InMiles, pl.Lead.OutMiles))
	if pl.Assistant != nil {
		a.AssistantID = pl.Assistant.TeamID
		reserveInterval(p.idx, a.AssistantID, j)
		p.longestLeg = math.Max(p.longestLeg, math.Max(pl.Assistant.InMiles, pl.Assistant.OutMiles))
	}
	p.remember(j, a)
	return a
}

// Release frees the members of a.
func (p *Planner) Release(a model.OptimizedAssignment) {
	for _, m := range a.Members() {
		p.idx.Release(m, a.Date(), a.JobID)
	}
}

// Job returns a job of the request.
func (p *Planner) Job(id string) (model.Job, bool) {
	j, ok := p.jobs[id]
	return j, ok
}

// legDistances returns every distinct distance the travel filter can
// compare, ascending: home to job and job to job, plus the zero leg of an
// unknown location.
func (p *Planner) legDistances() []float64 {
	seen := map[float64]struct{}{0: {}}
	var origins []*model.Coordinate
	for _, m := range p.members {
		origins = append(origins, m.Home)
	}
	for _, j := range p.jobs {
		origins = append(origins, j.Location)
	}
	for _, j := range p.jobs {
		for _, o := range origins {
			miles, _ := p.leg(o, j.Location)
			seen[miles] = struct{}{}
		}
	}
	out := make([]float64, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Float64s(out)
	return out
}
