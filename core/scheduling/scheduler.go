// Package scheduling is the entry point of the scheduler. A Scheduler runs
// optimization passes and manages the conflict resolution session built on
// the last plan.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/conflict"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/events"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/geo"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/logger"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/metrics"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/monitoring"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/optimizer"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/resolution"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/internal/eventbus"
)

const module = "scheduling"

// Scheduler orchestrates optimization and conflict resolution. Each instance
// owns its session; instances share nothing.
type Scheduler struct {
	est     geo.Estimator
	log     logger.Logger
	metrics metrics.MetricsSink
	bus     eventbus.EventBus
	store   history.Store
	monitor monitoring.Monitor
	now     func() time.Time
	stream  *eventbus.TypedBus[model.ConflictResolutionHistory]

	opt    *optimizer.Optimizer
	det    *conflict.Detector
	engine *resolution.Engine

	mu        sync.Mutex
	state     *resolution.State
	conflicts []model.SchedulingConflict
	ledger    *resolution.Ledger
	proposals map[string]model.ConflictResolution
}

// New returns a Scheduler. Without options it logs nowhere, records no
// metrics and keeps history in memory.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		est:     geo.NewEstimator(0),
		log:     logger.NopLogger{},
		metrics: metrics.NopSink{},
		store:   history.NewMemoryStore(),
		monitor: monitoring.NopMonitor{},
		now:     time.Now,
		stream:  eventbus.NewTyped[model.ConflictResolutionHistory](eventbus.WithBuffer(64)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.opt = optimizer.New(s.est)
	s.det = conflict.NewDetector(s.est)
	s.engine = resolution.NewEngine(s.est)
	return s
}

func (s *Scheduler) publish(ev eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// OptimizeSchedule assigns the jobs of req, detects the conflicts of the
// resulting plan and starts a new resolution session on it. The result only
// depends on req.
func (s *Scheduler) OptimizeSchedule(ctx context.Context, req model.SchedulingRequest) (model.SchedulingResult, error) {
	if err := ctx.Err(); err != nil {
		return model.SchedulingResult{}, err
	}
	started := s.now()
	plan, err := s.opt.Optimize(req)
	if err != nil {
		s.fail(err, started)
		return model.SchedulingResult{}, err
	}
	for _, jerr := range plan.JobErrors {
		s.log.Warnf("optimize: %v", jerr)
	}

	stamp := req.Stamp()
	conflicts := s.det.DetectInput(conflict.Input{
		Assignments: plan.Assignments,
		Jobs:        req.Jobs,
		Teams:       req.Teams,
		Constraints: req.Constraints,
		Preferences: req.Preferences,
	}, stamp)

	result := model.SchedulingResult{
		Assignments:         plan.Assignments,
		Conflicts:           conflicts,
		OptimizationMetrics: plan.Metrics,
		ScheduleByDate:      model.ByDate(plan.Assignments),
		Unassigned:          plan.Unassigned,
	}

	s.mu.Lock()
	version := 1
	if s.state != nil {
		version = s.state.Snapshot.Version + 1
	}
	s.state = &resolution.State{
		Snapshot:    model.NewSnapshot(version, plan.Assignments, stamp),
		Jobs:        append([]model.Job(nil), req.Jobs...),
		Teams:       append([]model.TeamMember(nil), req.Teams...),
		Constraints: req.Constraints,
		Preferences: req.Preferences,
	}
	s.conflicts = append([]model.SchedulingConflict(nil), conflicts...)
	s.ledger = resolution.NewLedger()
	s.proposals = make(map[string]model.ConflictResolution)
	s.mu.Unlock()

	elapsed := s.now().Sub(started)
	s.log.Infof("optimized %d jobs: %d assigned, %d unassigned, %d conflicts in %s",
		len(req.Jobs), plan.Metrics.AssignedJobs, len(plan.Unassigned), len(conflicts), elapsed)
	s.record(plan, len(conflicts), elapsed, started)
	s.publish(events.OptimizationEvent{
		Assigned:   plan.Metrics.AssignedJobs,
		Unassigned: len(plan.Unassigned),
		Conflicts:  len(conflicts),
		Duration:   elapsed,
		Metrics:    plan.Metrics,
	})
	for _, c := range conflicts {
		s.publish(events.ConflictEvent{Conflict: c})
	}
	return result, nil
}

func (s *Scheduler) fail(err error, started time.Time) {
	elapsed := s.now().Sub(started)
	if errors.Is(err, model.ErrConstraintViolation) {
		s.log.Errorf("optimize: %v", err)
		s.monitor.CaptureException(err, monitoring.Tags(module, err))
	} else {
		s.log.Warnf("optimize: %v", err)
	}
	if err := s.metrics.RecordOptimization(metrics.OptimizationRecord{Failed: true, Duration: elapsed, Time: started}); err != nil {
		s.log.Errorf("metrics error: %v", err)
	}
	s.publish(events.OptimizationEvent{Duration: elapsed, Err: err})
}

func (s *Scheduler) record(plan optimizer.Plan, conflicts int, elapsed time.Duration, at time.Time) {
	rec := metrics.OptimizationRecord{
		Assigned:             plan.Metrics.AssignedJobs,
		Unassigned:           len(plan.Unassigned),
		Conflicts:            conflicts,
		Duration:             elapsed,
		TotalTravelDistance:  plan.Metrics.TotalTravelDistance,
		TotalTravelTime:      plan.Metrics.TotalTravelMinutes,
		TeamUtilization:      plan.Metrics.UtilizationRate,
		GeographicEfficiency: plan.Metrics.GeographicEfficiency,
		Time:                 at,
	}
	if err := s.metrics.RecordOptimization(rec); err != nil {
		s.log.Errorf("metrics error: %v", err)
	}
	if ar, ok := s.metrics.(metrics.AssignmentRecorder); ok {
		if err := ar.RecordAssignments(plan.Assignments); err != nil {
			s.log.Errorf("assignment metrics error: %v", err)
		}
	}
}

func errNoSession() error {
	return model.Invalid("session", "no schedule has been optimized")
}

// ProposeResolution computes a resolution for the conflict with conflictID in
// the current snapshot. The proposal is kept until it is applied, rejected or
// the session is replaced.
func (s *Scheduler) ProposeResolution(ctx context.Context, conflictID string, opts ...resolution.Option) (model.ConflictResolution, error) {
	if err := ctx.Err(); err != nil {
		return model.ConflictResolution{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return model.ConflictResolution{}, errNoSession()
	}
	var target *model.SchedulingConflict
	for i := range s.conflicts {
		if s.conflicts[i].ID == conflictID {
			target = &s.conflicts[i]
			break
		}
	}
	if target == nil {
		return model.ConflictResolution{}, model.Invalid("conflict_id", "no current conflict %q", conflictID)
	}
	opts = append([]resolution.Option{resolution.At(s.now())}, opts...)
	res, err := s.engine.Propose(*s.state, *target, opts...)
	if err != nil {
		return model.ConflictResolution{}, err
	}
	s.proposals[res.ID] = res
	s.log.Debugw("resolution proposed", map[string]any{
		"resolution_id":  res.ID,
		"conflict_id":    res.ConflictID,
		"strategy":       string(res.Strategy),
		"requires_input": res.RequiresInput,
	})
	s.publish(events.ResolutionEvent{
		Action:       events.ActionProposed,
		ResolutionID: res.ID,
		ConflictType: target.Type,
		Strategy:     res.Strategy,
	})
	return res, nil
}

// Proposal returns a pending proposal by ID.
func (s *Scheduler) Proposal(id string) (model.ConflictResolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.proposals[id]
	return res, ok
}

// ApplyResolution applies res on the current snapshot on behalf of actor.
// A resolution that breaks a hard constraint yields a failed history entry
// and leaves the snapshot unchanged; the returned error is then nil.
func (s *Scheduler) ApplyResolution(ctx context.Context, res model.ConflictResolution, actor string) (model.AssignmentSnapshot, model.ConflictResolutionHistory, error) {
	if err := ctx.Err(); err != nil {
		return model.AssignmentSnapshot{}, model.ConflictResolutionHistory{}, err
	}
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return model.AssignmentSnapshot{}, model.ConflictResolutionHistory{}, errNoSession()
	}
	now := s.now()
	before := *s.state
	next, h, err := s.engine.Apply(before, res, actor, now)
	if err != nil {
		s.mu.Unlock()
		return before.Snapshot, model.ConflictResolutionHistory{}, err
	}
	s.ledger.Record(h, before.Snapshot)
	delete(s.proposals, res.ID)
	if h.Outcome == model.OutcomeSuccessful {
		s.state.Snapshot = next
		s.conflicts = s.detect(*s.state, now)
	}
	s.mu.Unlock()

	action := events.ActionApplied
	var applyErr error
	if h.Outcome == model.OutcomeFailed {
		action = events.ActionFailed
		applyErr = fmt.Errorf("%w: %s", model.ErrConstraintViolation, h.Notes)
		s.log.Errorf("resolution %s failed: %s", res.ID, h.Notes)
		tags := monitoring.Tags(module, applyErr)
		tags["resolution_id"] = res.ID
		tags["conflict_type"] = string(res.Conflict.Type)
		s.monitor.CaptureException(applyErr, tags)
	} else {
		s.log.Infof("resolution %s applied by %s, snapshot v%d", res.ID, actor, next.Version)
	}
	s.persist(ctx, h)
	s.publish(events.ResolutionEvent{
		Action:       action,
		ResolutionID: res.ID,
		HistoryID:    h.ID,
		ConflictType: res.Conflict.Type,
		Strategy:     res.Strategy,
		Err:          applyErr,
	})
	return next, h, nil
}

// RevertResolution restores the snapshot that preceded the successful
// history entry historyID. Later successful entries are reverted with it.
// The restored assignments become a new snapshot version.
func (s *Scheduler) RevertResolution(ctx context.Context, historyID string) (model.AssignmentSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.AssignmentSnapshot{}, err
	}
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return model.AssignmentSnapshot{}, errNoSession()
	}
	now := s.now()
	restored, updated, err := s.ledger.Revert(historyID, now)
	if err != nil {
		s.mu.Unlock()
		return model.AssignmentSnapshot{}, err
	}
	snap := model.NewSnapshot(s.state.Snapshot.Version+1, restored.Assignments, now)
	s.state.Snapshot = snap
	s.conflicts = s.detect(*s.state, now)
	s.proposals = make(map[string]model.ConflictResolution)
	s.mu.Unlock()

	s.log.Infof("history %s reverted (%d entries), snapshot v%d", historyID, len(updated), snap.Version)
	for _, h := range updated {
		s.persist(ctx, h)
		s.publish(events.ResolutionEvent{
			Action:       events.ActionReverted,
			ResolutionID: h.ResolutionID,
			HistoryID:    h.ID,
			ConflictType: h.ConflictType,
			Strategy:     h.Strategy,
		})
	}
	return snap, nil
}

// RejectResolution discards a pending proposal.
func (s *Scheduler) RejectResolution(ctx context.Context, resolutionID string) (model.ConflictResolution, error) {
	if err := ctx.Err(); err != nil {
		return model.ConflictResolution{}, err
	}
	s.mu.Lock()
	res, ok := s.proposals[resolutionID]
	if ok {
		delete(s.proposals, resolutionID)
	}
	s.mu.Unlock()
	if !ok {
		return model.ConflictResolution{}, model.Invalid("resolution_id", "no pending resolution %q", resolutionID)
	}
	res.State = model.StateRejected
	s.publish(events.ResolutionEvent{
		Action:       events.ActionRejected,
		ResolutionID: res.ID,
		ConflictType: res.Conflict.Type,
		Strategy:     res.Strategy,
	})
	return res, nil
}

func (s *Scheduler) detect(st resolution.State, at time.Time) []model.SchedulingConflict {
	return s.det.DetectInput(conflict.Input{
		Assignments: st.Snapshot.Assignments,
		Jobs:        st.Jobs,
		Teams:       st.Teams,
		Constraints: st.Constraints,
		Preferences: st.Preferences,
	}, at)
}

func (s *Scheduler) persist(ctx context.Context, h model.ConflictResolutionHistory) {
	if err := s.store.Append(ctx, h); err != nil {
		s.log.Errorf("history append %s: %v", h.ID, err)
		s.monitor.CaptureException(err, map[string]string{"module": module, "history_id": h.ID})
	}
	s.stream.Publish(h)
}

// Snapshot returns a copy of the current snapshot. ok is false before the
// first optimization.
func (s *Scheduler) Snapshot() (model.AssignmentSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return model.AssignmentSnapshot{}, false
	}
	snap := s.state.Snapshot
	snap.Assignments = snap.Copy()
	return snap, true
}

// Conflicts returns the conflicts of the current snapshot.
func (s *Scheduler) Conflicts() []model.SchedulingConflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SchedulingConflict(nil), s.conflicts...)
}

// History queries the persisted resolution history.
func (s *Scheduler) History(ctx context.Context, q history.Query) ([]model.ConflictResolutionHistory, error) {
	return s.store.Query(ctx, q)
}

// SubscribeHistory streams every new history version. Call the returned
// function to stop the subscription.
func (s *Scheduler) SubscribeHistory() (<-chan model.ConflictResolutionHistory, func()) {
	ch := s.stream.Subscribe()
	return ch, func() { s.stream.Unsubscribe(ch) }
}

// Close stops the history stream and closes the history store.
func (s *Scheduler) Close() error {
	s.stream.Close()
	return s.store.Close()
}
