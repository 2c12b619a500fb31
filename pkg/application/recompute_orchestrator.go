package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/felixgeelhaar/kalk/pkg/domain/events"
	"github.com/shopspring/decimal"
)

// Scheduler delays a keyed callback until the key has been quiet for a while.
// Scheduling a key again restarts its window.
type Scheduler interface {
	Schedule(key string, fn func())
	Stop()
}

// RecomputeResult describes one recompute cycle.
type RecomputeResult struct {
	ProjectID      string                      `json:"project_id"`
	Pre            calculation.PreCalculation  `json:"pre_calculation"`
	Post           calculation.PostCalculation `json:"post_calculation"`
	Classification calculation.Classification  `json:"classification"`
	PreWritten     bool                        `json:"pre_written"`
	PostWritten    bool                        `json:"post_written"`
	// Missing is set when the project has nothing to plan from yet.
	Missing error `json:"-"`
}

// Unchanged reports whether the cycle produced the stored records again.
func (r RecomputeResult) Unchanged() bool {
	return !r.PreWritten && !r.PostWritten
}

type projectState struct {
	fsm    *calculation.RecomputeStateMachine
	queued bool
}

// RecomputeOrchestrator keeps derived records of every project in step with
// their inputs. Recomputes of one project are serialized; different projects
// run independently.
type RecomputeOrchestrator struct {
	repo       calculation.Repository
	params     calculation.ParametersRepository
	sources    calculation.Sources
	deriver    *calculation.Deriver
	aggregator *calculation.PostAggregator
	dispatcher *events.EventDispatcher
	scheduler  Scheduler
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	projects map[string]*projectState

	hmu       sync.Mutex
	hydrating map[string]int
}

func NewRecomputeOrchestrator(repo calculation.Repository, params calculation.ParametersRepository, sources calculation.Sources, logger *slog.Logger) *RecomputeOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecomputeOrchestrator{
		repo:       repo,
		params:     params,
		sources:    sources,
		deriver:    calculation.NewDeriver(),
		aggregator: calculation.NewPostAggregator(),
		logger:     logger,
		now:        time.Now,
		projects:   make(map[string]*projectState),
		hydrating:  make(map[string]int),
	}
}

// SetDispatcher sets the dispatcher that receives calculation events.
func (o *RecomputeOrchestrator) SetDispatcher(dispatcher *events.EventDispatcher) {
	o.dispatcher = dispatcher
}

// SetScheduler enables automatic recomputes after invalidation. Without a
// scheduler, invalidated projects stay dirty until Recompute is called.
func (o *RecomputeOrchestrator) SetScheduler(scheduler Scheduler) {
	o.scheduler = scheduler
}

// SetClock replaces time.Now for computed timestamps.
func (o *RecomputeOrchestrator) SetClock(now func() time.Time) {
	o.now = now
}

func (o *RecomputeOrchestrator) stateLocked(projectID string) *projectState {
	st, ok := o.projects[projectID]
	if ok {
		return st
	}
	fsm, err := calculation.NewRecomputeStateMachine(calculation.StateClean, projectID, o.isHydrating)
	if err != nil {
		// static machine definition
		panic(err)
	}
	st = &projectState{fsm: fsm}
	o.projects[projectID] = st
	return st
}

// State returns the recompute state of a project. Unknown projects are clean.
func (o *RecomputeOrchestrator) State(projectID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.projects[projectID]; ok {
		return st.fsm.Current()
	}
	return calculation.StateClean
}

// Dirty lists projects waiting for a recompute, sorted by ID.
func (o *RecomputeOrchestrator) Dirty() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ids []string
	for id, st := range o.projects {
		if st.fsm.IsDirty() || st.queued {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Hydrate runs load while invalidations of projectID are suppressed. Loading
// stored records must not trigger the recompute that would store them again.
func (o *RecomputeOrchestrator) Hydrate(projectID string, load func() error) error {
	o.hmu.Lock()
	o.hydrating[projectID]++
	o.hmu.Unlock()

	defer func() {
		o.hmu.Lock()
		o.hydrating[projectID]--
		if o.hydrating[projectID] <= 0 {
			delete(o.hydrating, projectID)
		}
		o.hmu.Unlock()
	}()

	return load()
}

func (o *RecomputeOrchestrator) isHydrating(projectID string) bool {
	o.hmu.Lock()
	defer o.hmu.Unlock()
	return o.hydrating[projectID] > 0
}

// Invalidate marks the project dirty and schedules a recompute. While a
// recompute is running the request is queued for the next cycle.
func (o *RecomputeOrchestrator) Invalidate(ctx context.Context, projectID, reason string) {
	if o.isHydrating(projectID) {
		o.logger.Debug("invalidation suppressed during hydration", "project_id", projectID, "reason", reason)
		return
	}

	o.mu.Lock()
	st := o.stateLocked(projectID)
	switch {
	case st.fsm.IsRecomputing():
		st.queued = true
	case st.fsm.IsClean():
		if err := st.fsm.Transition(calculation.EventInvalidate); err != nil {
			o.mu.Unlock()
			o.logger.Debug("invalidation refused", "project_id", projectID, "error", err)
			return
		}
	}
	o.mu.Unlock()

	o.logger.Debug("project invalidated", "project_id", projectID, "reason", reason)
	o.dispatcher.Publish(ctx, &events.ProjectInvalidated{
		BaseEvent: events.NewBaseEvent(events.EventTypeProjectInvalidated, events.AggregateTypeProject, projectID, "system", o.now()),
		Reason:    reason,
	})
	o.schedule(projectID)
}

// InvalidateAll invalidates every project known to the sources.
func (o *RecomputeOrchestrator) InvalidateAll(ctx context.Context, reason string) error {
	projects, err := o.sources.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		o.Invalidate(ctx, p.ID, reason)
	}
	return nil
}

func (o *RecomputeOrchestrator) schedule(projectID string) {
	if o.scheduler == nil {
		return
	}
	o.scheduler.Schedule(projectID, func() {
		_, err := o.Recompute(context.Background(), projectID, "system")
		if err != nil && !errors.Is(err, calculation.ErrRecomputeCoalesced) {
			o.logger.Error("background recompute failed", "project_id", projectID, "error", err)
		}
	})
}

// Registration subscribes the orchestrator to parameter edits. Threshold edits
// change the classification of stored records and invalidate every project;
// rate and distribution edits only apply to future derivations.
func (o *RecomputeOrchestrator) Registration() events.HandlerRegistration {
	return events.HandlerRegistration{
		Name: "RecomputeOrchestrator",
		Handler: func(ctx context.Context, event events.DomainEvent) error {
			updated, ok := event.(*events.ParametersUpdated)
			if !ok {
				return nil
			}
			for _, f := range updated.Changed {
				if f == FieldThresholdsGreen || f == FieldThresholdsYellow {
					return o.InvalidateAll(ctx, "thresholds changed")
				}
			}
			return nil
		},
		EventTypes: []string{events.EventTypeParametersUpdated},
	}
}

// Recompute derives the PreCalculation and PostCalculation of a project from a
// snapshot of its inputs and persists whatever changed. A call arriving while
// the project is already recomputing returns ErrRecomputeCoalesced and is
// folded into a follow-up cycle.
func (o *RecomputeOrchestrator) Recompute(ctx context.Context, projectID, actor string) (RecomputeResult, error) {
	if actor == "" {
		actor = "system"
	}

	o.mu.Lock()
	st := o.stateLocked(projectID)
	if st.fsm.IsRecomputing() {
		st.queued = true
		o.mu.Unlock()
		o.logger.Debug("recompute coalesced", "project_id", projectID)
		return RecomputeResult{ProjectID: projectID}, calculation.ErrRecomputeCoalesced
	}
	if err := st.fsm.Transition(calculation.EventStart); err != nil {
		o.mu.Unlock()
		return RecomputeResult{}, err
	}
	o.mu.Unlock()

	started := time.Now()
	res, err := o.run(ctx, projectID, actor)

	o.mu.Lock()
	if err != nil {
		_ = st.fsm.Transition(calculation.EventFail)
	} else {
		_ = st.fsm.Transition(calculation.EventFinish)
	}
	again := st.queued
	st.queued = false
	if again && st.fsm.IsClean() {
		_ = st.fsm.Transition(calculation.EventInvalidate)
	}
	o.mu.Unlock()

	if again {
		o.schedule(projectID)
	}
	if err != nil {
		o.logger.Error("recompute failed", "project_id", projectID, "error", err)
		return res, err
	}
	o.logger.Info("recompute finished",
		"project_id", projectID,
		"pre_written", res.PreWritten,
		"post_written", res.PostWritten,
		"status", res.Classification.Status,
		"duration", time.Since(started))
	return res, nil
}

type inputSnapshot struct {
	params      calculation.Parameters
	project     *calculation.Project
	offer       *calculation.Offer
	assignments []calculation.EmployeeAssignment
	entries     []calculation.TimeEntry
	storedPre   *calculation.PreCalculation
	storedPost  *calculation.PostCalculation
}

func (o *RecomputeOrchestrator) snapshot(ctx context.Context, projectID string) (inputSnapshot, error) {
	var in inputSnapshot
	var err error

	if in.params, err = o.params.LoadParameters(ctx); err != nil {
		return in, fmt.Errorf("load parameters: %w", err)
	}
	if in.project, err = o.sources.GetProject(ctx, projectID); err != nil {
		return in, fmt.Errorf("load project %s: %w", projectID, err)
	}
	if in.project.OfferID != "" {
		if in.offer, err = o.sources.GetOffer(ctx, in.project.OfferID); err != nil {
			return in, fmt.Errorf("load offer %s: %w", in.project.OfferID, err)
		}
	}
	if in.assignments, err = o.sources.ListAssignments(ctx, projectID); err != nil {
		return in, fmt.Errorf("load assignments: %w", err)
	}
	if in.entries, err = o.sources.ListTimeEntries(ctx, projectID); err != nil {
		return in, fmt.Errorf("load time entries: %w", err)
	}
	if in.storedPre, err = o.repo.LoadPreCalculation(ctx, projectID); err != nil {
		return in, fmt.Errorf("load pre-calculation: %w", err)
	}
	if in.storedPost, err = o.repo.LoadPostCalculation(ctx, projectID); err != nil {
		return in, fmt.Errorf("load post-calculation: %w", err)
	}
	return in, nil
}

func (o *RecomputeOrchestrator) run(ctx context.Context, projectID, actor string) (RecomputeResult, error) {
	in, err := o.snapshot(ctx, projectID)
	if err != nil {
		return RecomputeResult{ProjectID: projectID}, err
	}
	now := o.now()

	derive := calculation.DeriveInput{
		ProjectID:   projectID,
		Offer:       in.offer,
		Assignments: in.assignments,
		Now:         now,
	}
	if in.storedPre != nil {
		// Recomputes follow input changes only; the plan keeps the rate and
		// distribution it was derived with.
		derive.RateSnapshot = in.storedPre.HourlyRate
		derive.DistributionSnapshot = in.storedPre.Distribution
		if in.storedPre.Source == calculation.SourceManualEntry {
			derive.ManualEntries = in.storedPre.Allocations
		}
	}
	derivation, err := o.deriver.Derive(derive, in.params)
	if err != nil {
		return RecomputeResult{ProjectID: projectID}, err
	}

	res := RecomputeResult{ProjectID: projectID, Pre: derivation.PreCalculation, Missing: derivation.Missing}
	pre, written := resolvePre(in.storedPre, &res.Pre, derivation.Missing)
	if pre != nil {
		res.Pre = *pre
	}
	res.PreWritten = written

	res.Post = o.aggregator.Recompute(calculation.RecomputeInput{
		ProjectID:   projectID,
		Pre:         pre,
		Assignments: in.assignments,
		Entries:     in.entries,
		Params:      in.params,
		Now:         now,
	})
	if err := res.Post.CheckInvariant(); err != nil {
		return RecomputeResult{ProjectID: projectID}, err
	}
	if in.storedPost != nil && in.storedPost.Fingerprint() == res.Post.Fingerprint() {
		res.Post = *in.storedPost
	} else {
		res.PostWritten = true
	}

	res.Classification = classifyRecords(pre, &res.Post, in.params.Thresholds)

	if res.PreWritten {
		if err := o.repo.SavePreCalculation(ctx, &res.Pre); err != nil {
			return RecomputeResult{ProjectID: projectID}, fmt.Errorf("save pre-calculation: %w", err)
		}
	}
	if res.PostWritten {
		if err := o.repo.SavePostCalculation(ctx, &res.Post); err != nil {
			return RecomputeResult{ProjectID: projectID}, fmt.Errorf("save post-calculation: %w", err)
		}
	}

	o.publish(ctx, actor, res, in)
	return res, nil
}

// resolvePre decides which plan a derivation leaves behind. A project that was
// never planned stays unplanned while it has no input; a stored plan is replaced
// by the derived one, which is the zero plan once its input is gone. written is
// false when the stored plan already matches.
func resolvePre(stored, derived *calculation.PreCalculation, missing error) (pre *calculation.PreCalculation, written bool) {
	switch {
	case stored == nil && missing != nil:
		return nil, false
	case stored != nil && stored.Fingerprint() == derived.Fingerprint():
		return stored, false
	}
	return derived, true
}

func (o *RecomputeOrchestrator) publish(ctx context.Context, actor string, res RecomputeResult, in inputSnapshot) {
	at := o.now()
	if res.PreWritten {
		o.dispatcher.Publish(ctx, preSavedEvent(&res.Pre, actor, at))
	}
	if !res.PostWritten {
		return
	}
	o.dispatcher.Publish(ctx, &events.PostCalculationRecomputed{
		BaseEvent:           events.NewBaseEvent(events.EventTypePostCalculationRecomputed, events.AggregateTypeProject, res.ProjectID, actor, at),
		ActualHoursSetup:    res.Post.ActualHoursSetup,
		ActualHoursTeardown: res.Post.ActualHoursTeardown,
		Status:              res.Classification.Status,
		Fingerprint:         res.Post.Fingerprint(),
	})

	var from calculation.Status
	if in.storedPost != nil {
		from = classifyRecords(in.storedPre, in.storedPost, in.params.Thresholds).Status
	}
	if from != res.Classification.Status {
		o.dispatcher.Publish(ctx, &events.DeviationStatusChanged{
			BaseEvent:        events.NewBaseEvent(events.EventTypeDeviationStatusChanged, events.AggregateTypeProject, res.ProjectID, actor, at),
			From:             from,
			To:               res.Classification.Status,
			DeviationPercent: res.Classification.DeviationPercent,
		})
	}
}

func preSavedEvent(pc *calculation.PreCalculation, actor string, at time.Time) *events.PreCalculationSaved {
	return &events.PreCalculationSaved{
		BaseEvent:            events.NewBaseEvent(events.EventTypePreCalculationSaved, events.AggregateTypeProject, pc.ProjectID, actor, at),
		Source:               pc.Source,
		PlannedHoursSetup:    pc.PlannedHoursSetup,
		PlannedHoursTeardown: pc.PlannedHoursTeardown,
		HourlyRate:           pc.HourlyRate,
		Fingerprint:          pc.Fingerprint(),
	}
}

// classifyRecords classifies a project's total actual against total planned
// hours. A project without a plan counts as planned = 0.
func classifyRecords(pre *calculation.PreCalculation, post *calculation.PostCalculation, th calculation.Thresholds) calculation.Classification {
	planned := decimal.Zero
	if pre != nil {
		planned = pre.TotalPlannedHours()
	}
	return calculation.Classify(planned, post.TotalActualHours(), th)
}
