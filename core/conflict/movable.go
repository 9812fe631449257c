package conflict

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/optimizer"
)

// Movable returns the jobs that must leave their current assignment to clear
// c, lowest priority first. A double-booking keeps its highest priority job
// in place; an overload releases only the excess.
func Movable(c model.SchedulingConflict, assignments []model.OptimizedAssignment, jobs map[string]model.Job, cons model.Constraints, teams map[string]model.TeamMember) []string {
	assigned := make(map[string]model.OptimizedAssignment, len(assignments))
	for _, a := range assignments {
		assigned[a.JobID] = a
	}
	var ids []string
	for _, id := range c.JobIDs {
		if _, ok := assigned[id]; ok {
			ids = append(ids, id)
		}
	}
	// Lowest priority first, later start first, then ID.
	sort.SliceStable(ids, func(a, b int) bool {
		ja, jb := jobs[ids[a]], jobs[ids[b]]
		if ja.Priority.Rank() != jb.Priority.Rank() {
			return ja.Priority.Rank() < jb.Priority.Rank()
		}
		sa, sb := assigned[ids[a]].Start, assigned[ids[b]].Start
		if !sa.Equal(sb) {
			return sa.After(sb)
		}
		return ids[a] < ids[b]
	})

	switch c.Type {
	case model.ConflictDoubleBooking:
		if len(ids) < 2 {
			return nil
		}
		return ids[:len(ids)-1]
	case model.ConflictOverloadedTeam:
		if len(c.TeamIDs) == 0 {
			return nil
		}
		capacity := cons.CapacityFor(teams[c.TeamIDs[0]])
		excess := len(ids) - capacity
		if excess <= 0 {
			return nil
		}
		return ids[:excess]
	default:
		return ids
	}
}

// probe reports whether a next-best placement exists for at least one job
// that must move, and describes the first one found.
func probe(in Input, est geo.Estimator, c model.SchedulingConflict) (string, bool) {
	req := in.request()
	jobs := req.JobIndex()
	moving := Movable(c, in.Assignments, jobs, in.Constraints, req.TeamIndex())
	if len(moving) == 0 {
		return "", false
	}
	skip := make(map[string]struct{}, len(moving))
	for _, id := range moving {
		skip[id] = struct{}{}
	}
	rest := make([]model.OptimizedAssignment, 0, len(in.Assignments))
	current := make(map[string]model.OptimizedAssignment, len(moving))
	for _, a := range in.Assignments {
		if _, ok := skip[a.JobID]; ok {
			current[a.JobID] = a
			continue
		}
		rest = append(rest, a)
	}
	p, err := optimizer.NewPlanner(req, rest, est)
	if err != nil {
		return "", false
	}
	for _, id := range moving {
		j, ok := jobs[id]
		if !ok {
			continue
		}
		pl, reason := p.NextBest(j, c.TeamIDs...)
		if reason != "" {
			continue
		}
		from := current[id].LeadID
		var b strings.Builder
		fmt.Fprintf(&b, "reassign job %s from %s to %s", id, from, pl.Lead.TeamID)
		if pl.Assistant != nil {
			fmt.Fprintf(&b, " with assistant %s", pl.Assistant.TeamID)
		}
		return b.String(), true
	}
	return "", false
}
