// Package conflict detects rule violations in an assignment snapshot.
// Conflicts are always recomputed from a whole snapshot.
package conflict

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/availability"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/optimizer"
)

// Detector evaluates the five conflict rules independently.
type Detector struct {
	Estimator geo.Estimator
}

// NewDetector returns a detector using est for travel legs.
func NewDetector(est geo.Estimator) *Detector {
	return &Detector{Estimator: est}
}

// Input is everything a detection pass looks at.
type Input struct {
	Assignments []model.OptimizedAssignment
	Jobs        []model.Job
	Teams       []model.TeamMember
	Constraints model.Constraints
	Preferences model.Preferences
}

func (in Input) request() model.SchedulingRequest {
	return model.SchedulingRequest{Jobs: in.Jobs, Teams: in.Teams, Constraints: in.Constraints, Preferences: in.Preferences}
}

// Detect returns every conflict of assignments, sorted by severity. It never
// fails; an assignment it cannot evaluate is reported or skipped.
func (d *Detector) Detect(assignments []model.OptimizedAssignment, jobs []model.Job, teams []model.TeamMember, c model.Constraints, detectedAt time.Time) []model.SchedulingConflict {
	return d.DetectInput(Input{Assignments: assignments, Jobs: jobs, Teams: teams, Constraints: c}, detectedAt)
}

// DetectInput is Detect with preferences used when probing next-best
// placements.
func (d *Detector) DetectInput(in Input, detectedAt time.Time) []model.SchedulingConflict {
	est := d.Estimator
	if est.SpeedMPH <= 0 {
		est = geo.NewEstimator(0)
	}
	jobs := in.request().JobIndex()
	teams := in.request().TeamIndex()

	var out []model.SchedulingConflict
	out = append(out, doubleBookings(in)...)
	out = append(out, overloads(in, jobs)...)
	out = append(out, unavailable(in, teams)...)
	out = append(out, specializationMismatches(in, jobs, teams)...)
	out = append(out, travelViolations(in, est)...)

	for i := range out {
		out[i].DetectedAt = detectedAt
		out[i].ID = model.ConflictID(out[i].Type, out[i].Date, out[i].TeamIDs, out[i].JobIDs)
		suggestion, ok := probe(in, est, out[i])
		out[i].AutoResolvable = ok
		out[i].SuggestedResolution = suggestion
	}
	model.SortConflicts(out)
	return out
}

type memberDay struct {
	team string
	date string
}

func doubleBookings(in Input) []model.SchedulingConflict {
	buffer := in.Constraints.Buffer()
	days := make(map[memberDay][]model.OptimizedAssignment)
	for _, a := range in.Assignments {
		for _, m := range a.Members() {
			k := memberDay{team: m, date: a.Date()}
			days[k] = append(days[k], a)
		}
	}
	var out []model.SchedulingConflict
	for _, k := range sortedKeys(days) {
		as := days[k]
		sort.SliceStable(as, func(i, j int) bool {
			if !as[i].Start.Equal(as[j].Start) {
				return as[i].Start.Before(as[j].Start)
			}
			return as[i].JobID < as[j].JobID
		})
		group := []string{as[0].JobID}
		groupEnd := as[0].End.Add(buffer)
		flush := func() {
			if len(group) > 1 {
				ids := append([]string(nil), group...)
				sort.Strings(ids)
				out = append(out, model.SchedulingConflict{
					Type:        model.ConflictDoubleBooking,
					Severity:    model.SeverityCritical,
					JobIDs:      ids,
					TeamIDs:     []string{k.team},
					Date:        k.date,
					Description: fmt.Sprintf("%s is double-booked on %s for jobs %s", k.team, k.date, strings.Join(ids, ", ")),
				})
			}
		}
		for _, a := range as[1:] {
			if a.Start.Before(groupEnd) {
				group = append(group, a.JobID)
				if e := a.End.Add(buffer); e.After(groupEnd) {
					groupEnd = e
				}
				continue
			}
			flush()
			group = []string{a.JobID}
			groupEnd = a.End.Add(buffer)
		}
		flush()
	}
	return out
}

func overloads(in Input, jobs map[string]model.Job) []model.SchedulingConflict {
	idx, err := availability.Build(in.Teams, in.Assignments, jobs, model.TimeWindow{}, in.Constraints)
	if err != nil {
		return nil
	}
	var out []model.SchedulingConflict
	for _, dc := range idx.Overloaded() {
		ids := make([]string, 0, len(dc.Busy))
		for _, b := range dc.Busy {
			ids = append(ids, b.JobID)
		}
		sort.Strings(ids)
		out = append(out, model.SchedulingConflict{
			Type:        model.ConflictOverloadedTeam,
			Severity:    model.SeverityHigh,
			JobIDs:      ids,
			TeamIDs:     []string{dc.TeamID},
			Date:        dc.Date,
			Description: fmt.Sprintf("%s has %d jobs on %s for a capacity of %d", dc.TeamID, dc.Committed, dc.Date, dc.Capacity),
		})
	}
	return out
}

func unavailable(in Input, teams map[string]model.TeamMember) []model.SchedulingConflict {
	var out []model.SchedulingConflict
	for _, a := range in.Assignments {
		for _, m := range a.Members() {
			member, ok := teams[m]
			var desc string
			switch {
			case !ok:
				desc = fmt.Sprintf("job %s is assigned to unknown team member %s", a.JobID, m)
			case !member.AvailableFor(a.Window()):
				desc = fmt.Sprintf("%s has no declared availability for job %s at %s-%s", m, a.JobID, a.Start.Format("15:04"), a.End.Format("15:04"))
			default:
				continue
			}
			out = append(out, model.SchedulingConflict{
				Type:        model.ConflictUnavailableTeam,
				Severity:    model.SeverityHigh,
				JobIDs:      []string{a.JobID},
				TeamIDs:     []string{m},
				Date:        a.Date(),
				Description: desc,
			})
		}
	}
	return out
}

// specializationMismatches checks the lead of each assignment; required
// specializations bind the lead only.
func specializationMismatches(in Input, jobs map[string]model.Job, teams map[string]model.TeamMember) []model.SchedulingConflict {
	var out []model.SchedulingConflict
	for _, a := range in.Assignments {
		j, ok := jobs[a.JobID]
		lead, known := teams[a.LeadID]
		if !ok || !known {
			continue
		}
		missing := lead.MissingSpecializations(in.Constraints.RequiredFor(j))
		if len(missing) == 0 {
			continue
		}
		out = append(out, model.SchedulingConflict{
			Type:        model.ConflictSpecializationMismatch,
			Severity:    model.SeverityHigh,
			JobIDs:      []string{a.JobID},
			TeamIDs:     []string{a.LeadID},
			Date:        a.Date(),
			Description: fmt.Sprintf("%s lacks %s required by job %s", a.LeadID, strings.Join(missing, ", "), a.JobID),
		})
	}
	return out
}

func travelViolations(in Input, est geo.Estimator) []model.SchedulingConflict {
	p, err := optimizer.NewPlanner(in.request(), nil, est)
	if err != nil {
		return nil
	}
	var out []model.SchedulingConflict
	for _, a := range p.Rechain(in.Assignments) {
		limit := in.Constraints.MaxTravelFor(a.LeadID)
		if limit <= 0 || a.EstimatedTravelDistance <= limit {
			continue
		}
		from := "home"
		if a.PreviousJobID != "" {
			from = a.PreviousJobID
		}
		out = append(out, model.SchedulingConflict{
			Type:        model.ConflictTravelDistanceViolation,
			Severity:    model.SeverityMedium,
			JobIDs:      []string{a.JobID},
			TeamIDs:     []string{a.LeadID},
			Date:        a.Date(),
			Description: fmt.Sprintf("%s travels %.1f mi from %s to job %s, limit %.1f mi", a.LeadID, a.EstimatedTravelDistance, from, a.JobID, limit),
		})
	}
	return out
}

func sortedKeys(m map[memberDay][]model.OptimizedAssignment) []memberDay {
	keys := make([]memberDay, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].team != keys[j].team {
			return keys[i].team < keys[j].team
		}
		return keys[i].date < keys[j].date
	})
	return keys
}
