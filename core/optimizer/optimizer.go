// Package optimizer assigns installation jobs to team members with a
// deterministic greedy heuristic: jobs are clustered, ordered by priority and
// placed one by one on the member with the lowest marginal travel cost that
// satisfies every hard constraint.
package optimizer

import (
	"math"
	"sort"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Plan is the outcome of one optimization pass. Assignments contains the
// committed input assignments followed by the new ones, chained and scored.
type Plan struct {
	Assignments []model.OptimizedAssignment
	Metrics     model.OptimizationMetrics
	Unassigned  []model.UnassignedJob
	// JobErrors holds per-job errors that did not abort the pass.
	JobErrors []error
	// NewJobIDs lists the jobs placed by this pass.
	NewJobIDs []string
}

// Optimizer runs optimization passes. The zero value uses the default speed.
type Optimizer struct {
	Estimator geo.Estimator
}

// New returns an optimizer using est.
func New(est geo.Estimator) *Optimizer {
	return &Optimizer{Estimator: est}
}

// Optimize validates req and computes a plan. Jobs carried by an existing
// assignment are kept and not re-optimized.
//
// A far job admitted by a looser travel limit can take the slot of several
// nearby ones, so the greedy pass also runs under tighter caps and the plan
// placing the most jobs wins, ties going to the loosest cap. Raising
// MaxTravelDistance therefore never lowers the number of assigned jobs.
func (o *Optimizer) Optimize(req model.SchedulingRequest) (Plan, error) {
	if err := req.Validate(); err != nil {
		return Plan{}, err
	}
	est := o.Estimator
	if est.SpeedMPH <= 0 {
		est = geo.NewEstimator(0)
	}

	travelCap := req.Constraints.MaxTravelDistance
	if travelCap == 0 {
		travelCap = math.Inf(1)
	}
	var (
		best Plan
		legs []float64
	)
	for first := true; ; first = false {
		plan, p, err := o.pass(req, est, travelCap)
		if err != nil {
			return Plan{}, err
		}
		if first || len(plan.NewJobIDs) > len(best.NewJobIDs) {
			best = plan
		}
		if len(plan.Unassigned) == 0 {
			break
		}
		// Any cap between the longest placed leg and this one replays the
		// same pass.
		if legs == nil {
			legs = p.legDistances()
		}
		i := sort.SearchFloat64s(legs, p.longestLeg)
		if i == 0 {
			break
		}
		travelCap = legs[i-1]
	}
	return best, nil
}

// pass runs the greedy placement once with every travel limit capped at
// travelCap.
func (o *Optimizer) pass(req model.SchedulingRequest, est geo.Estimator, travelCap float64) (Plan, *Planner, error) {
	p, err := NewPlanner(req, req.ExistingAssignments, est)
	if err != nil {
		return Plan{}, nil, err
	}
	p.travelCap = travelCap

	committed := make(map[string]struct{}, len(req.ExistingAssignments))
	for _, a := range req.ExistingAssignments {
		committed[a.JobID] = struct{}{}
	}

	var plan Plan
	assignments := append([]model.OptimizedAssignment(nil), req.ExistingAssignments...)
	for _, c := range p.clusters {
		for _, j := range c.Jobs {
			if _, ok := committed[j.ID]; ok {
				continue
			}
			pl, reason := p.NextBest(j)
			if reason != "" {
				plan.Unassigned = append(plan.Unassigned, model.UnassignedJob{JobID: j.ID, Reason: reason})
				if reason == model.ReasonMissingCoordinate {
					plan.JobErrors = append(plan.JobErrors, &model.MissingCoordinateError{JobID: j.ID})
				}
				continue
			}
			assignments = append(assignments, p.Place(j, pl))
			plan.NewJobIDs = append(plan.NewJobIDs, j.ID)
		}
	}

	if err := p.Validate(assignments, plan.NewJobIDs); err != nil {
		return Plan{}, nil, err
	}

	assignments = p.Rechain(assignments)
	model.SortAssignments(assignments)
	sort.Slice(plan.Unassigned, func(i, j int) bool { return plan.Unassigned[i].JobID < plan.Unassigned[j].JobID })

	plan.Assignments = assignments
	plan.Metrics = p.Evaluate(assignments, len(plan.Unassigned))
	return plan, p, nil
}
