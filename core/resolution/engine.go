// Package resolution proposes, applies and reverts conflict resolutions.
// Every change produces a new assignment snapshot; previous snapshots are
// never modified.
package resolution

import (
	"time"

	"github.com/google/uuid"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/conflict"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/optimizer"
)

// State is the context a resolution is computed against.
type State struct {
	Snapshot    model.AssignmentSnapshot
	Jobs        []model.Job
	Teams       []model.TeamMember
	Constraints model.Constraints
	Preferences model.Preferences
}

func (st State) request(now time.Time) model.SchedulingRequest {
	return model.SchedulingRequest{
		Jobs:        st.Jobs,
		Teams:       st.Teams,
		Constraints: st.Constraints,
		Preferences: st.Preferences,
		AsOf:        now,
	}
}

// ManualTarget is a caller-supplied placement for one job. A nil Start keeps
// the current start time.
type ManualTarget struct {
	JobID       string     `json:"job_id"`
	LeadID      string     `json:"lead_id"`
	AssistantID string     `json:"assistant_id,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
}

type proposeOptions struct {
	target   *ManualTarget
	strategy model.ResolutionStrategy
	now      time.Time
}

// Option customizes Propose.
type Option func(*proposeOptions)

// WithTarget places a job where the caller says.
func WithTarget(t ManualTarget) Option {
	return func(o *proposeOptions) { o.target = &t }
}

// WithStrategy forces a strategy. Only unassign changes the behaviour; the
// other strategies are inferred from the conflict and the target.
func WithStrategy(s model.ResolutionStrategy) Option {
	return func(o *proposeOptions) { o.strategy = s }
}

// At stamps the proposal and the new assignments with now.
func At(now time.Time) Option {
	return func(o *proposeOptions) { o.now = now }
}

// Engine computes resolutions. It holds no per-session state.
type Engine struct {
	est   geo.Estimator
	newID func() string
}

// NewEngine returns an engine using est for travel estimates.
func NewEngine(est geo.Estimator) *Engine {
	if est.SpeedMPH <= 0 {
		est = geo.NewEstimator(0)
	}
	return &Engine{est: est, newID: uuid.NewString}
}

func (e *Engine) planner(st State, snapshot []model.OptimizedAssignment) (*optimizer.Planner, error) {
	return optimizer.NewPlanner(st.request(st.Snapshot.CreatedAt), snapshot, e.est)
}

// Propose computes a resolution for c. Auto-resolvable conflicts re-place
// only the jobs that must move, lowest priority first, away from the
// offending members. Other conflicts need WithTarget or WithStrategy;
// without them the result is a stub with RequiresInput set.
func (e *Engine) Propose(st State, c model.SchedulingConflict, opts ...Option) (model.ConflictResolution, error) {
	o := proposeOptions{now: time.Now()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.strategy != "" && !o.strategy.Valid() {
		return model.ConflictResolution{}, model.Invalid("strategy", "unknown strategy %q", o.strategy)
	}
	res := model.ConflictResolution{
		ID:          e.newID(),
		ConflictID:  c.ID,
		Conflict:    c,
		State:       model.StateProposalGenerated,
		BaseVersion: st.Snapshot.Version,
		ProposedAt:  o.now,
	}

	req := st.request(o.now)
	jobs := req.JobIndex()
	teams := req.TeamIndex()
	current := make(map[string]model.OptimizedAssignment, len(st.Snapshot.Assignments))
	for _, a := range st.Snapshot.Assignments {
		current[a.JobID] = a
	}

	var changes []model.AssignmentChange
	switch {
	case o.strategy == model.StrategyUnassign:
		res.Strategy = model.StrategyUnassign
		ids := conflict.Movable(c, st.Snapshot.Assignments, jobs, st.Constraints, teams)
		if o.target != nil {
			ids = []string{o.target.JobID}
		}
		for _, id := range ids {
			a, ok := current[id]
			if !ok {
				return model.ConflictResolution{}, model.Invalid("target.job_id", "job %s is not assigned", id)
			}
			changes = append(changes, model.AssignmentChange{JobID: id, Before: &a})
		}

	case o.target != nil:
		res.Strategy = model.StrategyManual
		ch, err := manualChange(*o.target, jobs, teams, current, st.Constraints, o.now)
		if err != nil {
			return model.ConflictResolution{}, err
		}
		changes = append(changes, ch)

	default:
		res.Strategy = model.StrategyReassign
		var err error
		changes, err = e.reassign(st, req, c, jobs, teams, current)
		if err != nil {
			return model.ConflictResolution{}, err
		}
		if len(changes) == 0 {
			res.Strategy = model.StrategyManual
			res.State = model.StateDetected
			res.RequiresInput = true
			return res, nil
		}
	}

	after := applyChanges(st.Snapshot.Assignments, changes)
	p, err := e.planner(st, nil)
	if err != nil {
		return model.ConflictResolution{}, err
	}
	chained := p.Rechain(after)
	byJob := make(map[string]model.OptimizedAssignment, len(chained))
	for _, a := range chained {
		byJob[a.JobID] = a
	}
	for i := range changes {
		if changes[i].After != nil {
			a := byJob[changes[i].JobID]
			changes[i].After = &a
		}
	}
	res.Changes = changes
	res.Impact = e.impact(st, st.Snapshot.Assignments, after, changes)
	return res, nil
}

// reassign re-places the movable jobs of c. It returns no changes when no
// job can be placed, which turns the proposal into a stub.
func (e *Engine) reassign(st State, req model.SchedulingRequest, c model.SchedulingConflict, jobs map[string]model.Job, teams map[string]model.TeamMember, current map[string]model.OptimizedAssignment) ([]model.AssignmentChange, error) {
	ids := conflict.Movable(c, st.Snapshot.Assignments, jobs, st.Constraints, teams)
	if len(ids) == 0 {
		return nil, nil
	}
	moving := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		moving[id] = struct{}{}
	}
	rest := make([]model.OptimizedAssignment, 0, len(st.Snapshot.Assignments))
	for _, a := range st.Snapshot.Assignments {
		if _, ok := moving[a.JobID]; !ok {
			rest = append(rest, a)
		}
	}
	p, err := optimizer.NewPlanner(req, rest, e.est)
	if err != nil {
		return nil, err
	}
	var changes []model.AssignmentChange
	placed := 0
	for _, id := range ids {
		j, ok := jobs[id]
		if !ok {
			continue
		}
		before := current[id]
		ch := model.AssignmentChange{JobID: id, Before: &before}
		if pl, reason := p.NextBest(j, c.TeamIDs...); reason == "" {
			a := p.Place(j, pl)
			ch.After = &a
			placed++
		}
		changes = append(changes, ch)
	}
	if placed == 0 {
		return nil, nil
	}
	return changes, nil
}

func manualChange(t ManualTarget, jobs map[string]model.Job, teams map[string]model.TeamMember, current map[string]model.OptimizedAssignment, c model.Constraints, now time.Time) (model.AssignmentChange, error) {
	j, ok := jobs[t.JobID]
	if !ok {
		return model.AssignmentChange{}, model.Invalid("target.job_id", "unknown job %q", t.JobID)
	}
	if _, ok := teams[t.LeadID]; !ok {
		return model.AssignmentChange{}, model.Invalid("target.lead_id", "unknown team member %q", t.LeadID)
	}
	if t.AssistantID != "" {
		if _, ok := teams[t.AssistantID]; !ok {
			return model.AssignmentChange{}, model.Invalid("target.assistant_id", "unknown team member %q", t.AssistantID)
		}
		if t.AssistantID == t.LeadID {
			return model.AssignmentChange{}, model.Invalid("target.assistant_id", "assistant cannot be the lead")
		}
	}
	start := j.ScheduledStart
	ch := model.AssignmentChange{JobID: j.ID}
	if a, ok := current[j.ID]; ok {
		start = a.Start
		ch.Before = &a
	}
	if t.Start != nil {
		start = *t.Start
	}
	ch.After = &model.OptimizedAssignment{
		JobID:         j.ID,
		LeadID:        t.LeadID,
		AssistantID:   t.AssistantID,
		Start:         start,
		End:           start.Add(j.Duration()),
		BufferMinutes: c.BufferMinutes,
		AssignedAt:    now,
	}
	return ch, nil
}

// applyChanges returns a new slice with every change applied.
func applyChanges(as []model.OptimizedAssignment, changes []model.AssignmentChange) []model.OptimizedAssignment {
	touched := make(map[string]struct{}, len(changes))
	for _, ch := range changes {
		touched[ch.JobID] = struct{}{}
	}
	out := make([]model.OptimizedAssignment, 0, len(as)+len(changes))
	for _, a := range as {
		if _, ok := touched[a.JobID]; !ok {
			out = append(out, a)
		}
	}
	for _, ch := range changes {
		if ch.After != nil {
			out = append(out, *ch.After)
		}
	}
	model.SortAssignments(out)
	return out
}

// Apply builds a new snapshot from res and validates the changed
// assignments. A violation yields a failed history entry and the original
// snapshot. Applying a stub or a proposal made on another snapshot version
// is an InvalidRequestError.
func (e *Engine) Apply(st State, res model.ConflictResolution, actor string, now time.Time) (model.AssignmentSnapshot, model.ConflictResolutionHistory, error) {
	if res.RequiresInput || len(res.Changes) == 0 {
		return st.Snapshot, model.ConflictResolutionHistory{}, model.Invalid("resolution", "resolution %s requires a target", res.ID)
	}
	if res.State != model.StateProposalGenerated {
		return st.Snapshot, model.ConflictResolutionHistory{}, model.Invalid("resolution", "resolution %s is %s", res.ID, res.State)
	}
	if res.BaseVersion != st.Snapshot.Version {
		return st.Snapshot, model.ConflictResolutionHistory{}, model.Invalid("resolution", "resolution %s targets snapshot %d, current is %d", res.ID, res.BaseVersion, st.Snapshot.Version)
	}

	h := model.ConflictResolutionHistory{
		ID:           e.newID(),
		ConflictID:   res.ConflictID,
		ResolutionID: res.ID,
		ConflictType: res.Conflict.Type,
		Strategy:     res.Strategy,
		AppliedBy:    actor,
		AppliedAt:    now,
		Metrics: model.ResolutionMetrics{
			CostSavings:               -res.Impact.CostImpact,
			EfficiencyGain:            res.Impact.EfficiencyGain,
			CustomerSatisfactionDelta: satisfactionDelta(res.Conflict.Severity, res.Impact.CustomerImpact),
			AffectedTeamMembers:       res.Impact.AffectedTeamMembers,
		},
	}
	if !res.Conflict.DetectedAt.IsZero() && now.After(res.Conflict.DetectedAt) {
		h.Metrics.TimeToResolve = now.Sub(res.Conflict.DetectedAt)
	}

	after := applyChanges(st.Snapshot.Assignments, res.Changes)
	p, err := e.planner(st, nil)
	if err != nil {
		return st.Snapshot, model.ConflictResolutionHistory{}, err
	}
	var placed []string
	for _, ch := range res.Changes {
		if ch.After != nil {
			placed = append(placed, ch.JobID)
		}
	}
	if err := p.Validate(after, placed); err != nil {
		h.Outcome = model.OutcomeFailed
		h.Notes = err.Error()
		return st.Snapshot, h, nil
	}
	h.Outcome = model.OutcomeSuccessful
	next := model.NewSnapshot(st.Snapshot.Version+1, p.Rechain(after), now)
	return next, h, nil
}
