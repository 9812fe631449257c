package resolution

import (
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// customerTier grades the schedule delta of a single job.
func customerTier(before, after *model.OptimizedAssignment) model.ImpactTier {
	switch {
	case after == nil:
		return model.ImpactHigh
	case before == nil:
		return model.ImpactNone
	}
	shift := after.Start.Sub(before.Start)
	if shift < 0 {
		shift = -shift
	}
	if before.Date() == after.Date() {
		switch {
		case shift == 0:
			return model.ImpactNone
		case shift < 2*time.Hour:
			return model.ImpactLow
		default:
			return model.ImpactMedium
		}
	}
	if dayDistance(before.Start, after.Start) <= 7 {
		return model.ImpactMedium
	}
	return model.ImpactHigh
}

func dayDistance(a, b time.Time) int {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	d := time.Date(yb, mb, db, 0, 0, 0, 0, time.UTC).Sub(time.Date(ya, ma, da, 0, 0, 0, 0, time.UTC))
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

func teamTier(members int) model.ImpactTier {
	switch {
	case members == 0:
		return model.ImpactNone
	case members <= 2:
		return model.ImpactLow
	case members <= 4:
		return model.ImpactMedium
	default:
		return model.ImpactHigh
	}
}

// satisfactionDelta is the relief of clearing a conflict of severity s minus
// the penalty of the customer impact.
func satisfactionDelta(s model.Severity, customer model.ImpactTier) float64 {
	relief := map[model.Severity]float64{
		model.SeverityCritical: 0.4,
		model.SeverityHigh:     0.3,
		model.SeverityMedium:   0.2,
		model.SeverityLow:      0.1,
	}[s]
	penalty := map[model.ImpactTier]float64{
		model.ImpactLow:    0.1,
		model.ImpactMedium: 0.25,
		model.ImpactHigh:   0.5,
	}[customer]
	return relief - penalty
}

func affectedMembers(changes []model.AssignmentChange) int {
	seen := make(map[string]struct{})
	for _, ch := range changes {
		for _, a := range []*model.OptimizedAssignment{ch.Before, ch.After} {
			if a == nil {
				continue
			}
			for _, m := range a.Members() {
				seen[m] = struct{}{}
			}
		}
	}
	return len(seen)
}

func (e *Engine) impact(st State, before, after []model.OptimizedAssignment, changes []model.AssignmentChange) model.ResolutionImpact {
	p, err := e.planner(st, nil)
	if err != nil {
		return model.ResolutionImpact{AffectedAssignments: len(changes)}
	}
	mb := p.Evaluate(p.Rechain(before), 0)
	ma := p.Evaluate(p.Rechain(after), 0)
	tier := model.ImpactNone
	for _, ch := range changes {
		if t := customerTier(ch.Before, ch.After); t.Rank() > tier.Rank() {
			tier = t
		}
	}
	members := affectedMembers(changes)
	return model.ResolutionImpact{
		CostImpact:          ma.TotalTravelDistance - mb.TotalTravelDistance,
		TimeImpactMinutes:   ma.TotalTravelMinutes - mb.TotalTravelMinutes,
		CustomerImpact:      tier,
		TeamImpact:          teamTier(members),
		AffectedAssignments: len(changes),
		EfficiencyGain:      ma.GeographicEfficiency - mb.GeographicEfficiency,
		AffectedTeamMembers: members,
	}
}
