package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/felixgeelhaar/kalk/pkg/domain/events"
	"github.com/shopspring/decimal"
)

// ProjectClassification is the traffic light of a whole project.
type ProjectClassification struct {
	ProjectID string `json:"project_id"`
	calculation.Classification
	Hours   calculation.Deviation `json:"hours"`
	Revenue calculation.Deviation `json:"revenue"`
}

// EmployeeClassification is the traffic light of one crew member. It is
// independent of the project status.
type EmployeeClassification struct {
	ProjectID    string `json:"project_id"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	calculation.Classification
	Hours   calculation.Deviation `json:"hours"`
	Revenue calculation.Deviation `json:"revenue"`
}

// CalculationService is the persistence surface of the engine: it reads and
// writes PreCalculations, triggers recomputes and classifies projects.
type CalculationService struct {
	repo         calculation.Repository
	params       calculation.ParametersRepository
	sources      calculation.Sources
	orchestrator *RecomputeOrchestrator
	dispatcher   *events.EventDispatcher
	now          func() time.Time
}

func NewCalculationService(repo calculation.Repository, params calculation.ParametersRepository, sources calculation.Sources, orchestrator *RecomputeOrchestrator) *CalculationService {
	return &CalculationService{
		repo:         repo,
		params:       params,
		sources:      sources,
		orchestrator: orchestrator,
		now:          time.Now,
	}
}

// SetDispatcher sets the dispatcher that receives PreCalculationSaved events.
func (s *CalculationService) SetDispatcher(dispatcher *events.EventDispatcher) {
	s.dispatcher = dispatcher
}

// Projects lists the projects known to the sources.
func (s *CalculationService) Projects(ctx context.Context) ([]calculation.Project, error) {
	return s.sources.ListProjects(ctx)
}

// Assignments lists the employee assignments of a project.
func (s *CalculationService) Assignments(ctx context.Context, projectID string) ([]calculation.EmployeeAssignment, error) {
	return s.sources.ListAssignments(ctx, projectID)
}

// GetPreCalculation returns the stored plan, or nil when the project has none.
func (s *CalculationService) GetPreCalculation(ctx context.Context, projectID string) (*calculation.PreCalculation, error) {
	pc, err := s.repo.LoadPreCalculation(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load pre-calculation %s: %w", projectID, err)
	}
	return pc, nil
}

// GetPostCalculation returns the stored reconciliation, or nil when the project
// was never recomputed.
func (s *CalculationService) GetPostCalculation(ctx context.Context, projectID string) (*calculation.PostCalculation, error) {
	pc, err := s.repo.LoadPostCalculation(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load post-calculation %s: %w", projectID, err)
	}
	return pc, nil
}

// SavePreCalculation stores a plan as given and invalidates the project so the
// post-calculation follows the new plan.
func (s *CalculationService) SavePreCalculation(ctx context.Context, pc *calculation.PreCalculation, actor string) error {
	if err := validatePre(pc); err != nil {
		return err
	}
	if _, err := s.sources.GetProject(ctx, pc.ProjectID); err != nil {
		return err
	}
	if pc.DerivedAt.IsZero() {
		pc.DerivedAt = s.now()
	}
	return s.store(ctx, pc, actor)
}

// DerivePreCalculation re-derives the plan of a project with the current
// parameters. Manually entered figures of a stored plan are carried over.
// A project without planning input yields Derivation.Missing and a zero plan,
// which replaces a stored plan and is not stored when there is none.
func (s *CalculationService) DerivePreCalculation(ctx context.Context, projectID, actor string) (calculation.Derivation, error) {
	stored, err := s.GetPreCalculation(ctx, projectID)
	if err != nil {
		return calculation.Derivation{}, err
	}
	in, err := s.deriveInput(ctx, projectID)
	if err != nil {
		return calculation.Derivation{}, err
	}
	if stored != nil && stored.Source == calculation.SourceManualEntry {
		in.ManualEntries = stored.Allocations
	}
	return s.derive(ctx, calculation.NewDeriver(), in, stored, actor)
}

// SaveManualPreCalculation plans a project from per-employee figures typed in
// by a user. The figures are summed per activity like assignment overrides.
// Manual entry only applies to projects without overrides or an offer; those
// outrank it and would replace it on the next recompute.
func (s *CalculationService) SaveManualPreCalculation(ctx context.Context, projectID string, entries []calculation.Allocation, actor string) (calculation.Derivation, error) {
	if len(entries) == 0 {
		return calculation.Derivation{}, &calculation.ValidationError{Field: "manual_entries", Reason: "at least one entry is required"}
	}
	stored, err := s.GetPreCalculation(ctx, projectID)
	if err != nil {
		return calculation.Derivation{}, err
	}
	in, err := s.deriveInput(ctx, projectID)
	if err != nil {
		return calculation.Derivation{}, err
	}
	params, err := s.params.LoadParameters(ctx)
	if err != nil {
		return calculation.Derivation{}, fmt.Errorf("load parameters: %w", err)
	}
	for _, outranking := range []calculation.PlanningStrategy{calculation.OverrideStrategy{}, calculation.OfferStrategy{}} {
		if _, ok := outranking.Plan(in, params, params.HourlyRate); ok {
			return calculation.Derivation{}, &calculation.ValidationError{
				Field:  "manual_entries",
				Reason: fmt.Sprintf("project %s is planned from %s; manual entry only applies without overrides or offer", projectID, outranking.Source()),
			}
		}
	}
	in.ManualEntries = entries
	if stored != nil {
		in.RateSnapshot = stored.HourlyRate
		in.DistributionSnapshot = stored.Distribution
	}
	return s.derive(ctx, calculation.NewDeriver(calculation.ManualEntryStrategy{}), in, stored, actor)
}

func (s *CalculationService) deriveInput(ctx context.Context, projectID string) (calculation.DeriveInput, error) {
	project, err := s.sources.GetProject(ctx, projectID)
	if err != nil {
		return calculation.DeriveInput{}, err
	}
	in := calculation.DeriveInput{ProjectID: projectID, Now: s.now()}
	if project.OfferID != "" {
		if in.Offer, err = s.sources.GetOffer(ctx, project.OfferID); err != nil {
			return calculation.DeriveInput{}, fmt.Errorf("load offer %s: %w", project.OfferID, err)
		}
	}
	if in.Assignments, err = s.sources.ListAssignments(ctx, projectID); err != nil {
		return calculation.DeriveInput{}, fmt.Errorf("load assignments: %w", err)
	}
	return in, nil
}

func (s *CalculationService) derive(ctx context.Context, d *calculation.Deriver, in calculation.DeriveInput, stored *calculation.PreCalculation, actor string) (calculation.Derivation, error) {
	params, err := s.params.LoadParameters(ctx)
	if err != nil {
		return calculation.Derivation{}, fmt.Errorf("load parameters: %w", err)
	}
	derivation, err := d.Derive(in, params)
	if err != nil {
		return calculation.Derivation{}, err
	}
	pre, written := resolvePre(stored, &derivation.PreCalculation, derivation.Missing)
	if pre == nil || !written {
		if pre != nil {
			derivation.PreCalculation = *pre
		}
		return derivation, nil
	}
	if err := s.store(ctx, pre, actor); err != nil {
		return calculation.Derivation{}, err
	}
	return derivation, nil
}

func (s *CalculationService) store(ctx context.Context, pc *calculation.PreCalculation, actor string) error {
	if err := s.repo.SavePreCalculation(ctx, pc); err != nil {
		return fmt.Errorf("save pre-calculation %s: %w", pc.ProjectID, err)
	}
	s.dispatcher.Publish(ctx, preSavedEvent(pc, actor, s.now()))
	if s.orchestrator != nil {
		s.orchestrator.Invalidate(ctx, pc.ProjectID, "pre-calculation saved")
	}
	return nil
}

func validatePre(pc *calculation.PreCalculation) error {
	if pc == nil || pc.ProjectID == "" {
		return &calculation.ValidationError{Field: "project_id", Reason: "must not be empty"}
	}
	if pc.PlannedHoursSetup.IsNegative() || pc.PlannedHoursTeardown.IsNegative() {
		return &calculation.ValidationError{Field: "planned_hours", Reason: "must be >= 0"}
	}
	if !pc.HourlyRate.IsPositive() {
		return &calculation.ValidationError{Field: "hourly_rate", Reason: "must be > 0, got " + pc.HourlyRate.String()}
	}
	switch pc.Source {
	case calculation.SourceOffer, calculation.SourceManualAssignment, calculation.SourceManualEntry:
	default:
		return &calculation.ValidationError{Field: "source", Reason: fmt.Sprintf("unknown source %q", pc.Source)}
	}
	return nil
}

// RecomputePostCalculation recomputes a project now, bypassing the debounce.
func (s *CalculationService) RecomputePostCalculation(ctx context.Context, projectID, actor string) (RecomputeResult, error) {
	return s.orchestrator.Recompute(ctx, projectID, actor)
}

// records returns the stored plan and reconciliation, recomputing once when
// the project has never been reconciled.
func (s *CalculationService) records(ctx context.Context, projectID string) (*calculation.PreCalculation, *calculation.PostCalculation, calculation.Parameters, error) {
	params, err := s.params.LoadParameters(ctx)
	if err != nil {
		return nil, nil, params, fmt.Errorf("load parameters: %w", err)
	}
	pre, err := s.GetPreCalculation(ctx, projectID)
	if err != nil {
		return nil, nil, params, err
	}
	post, err := s.GetPostCalculation(ctx, projectID)
	if err != nil {
		return nil, nil, params, err
	}
	if post != nil {
		return pre, post, params, nil
	}

	res, err := s.orchestrator.Recompute(ctx, projectID, "system")
	if err != nil && !errors.Is(err, calculation.ErrRecomputeCoalesced) {
		return nil, nil, params, err
	}
	if err == nil {
		if res.Missing == nil || pre != nil {
			pre = &res.Pre
		}
		return pre, &res.Post, params, nil
	}
	return pre, &calculation.PostCalculation{ProjectID: projectID}, params, nil
}

// ClassifyProject compares total actual against total planned hours.
func (s *CalculationService) ClassifyProject(ctx context.Context, projectID string) (ProjectClassification, error) {
	pre, post, params, err := s.records(ctx, projectID)
	if err != nil {
		return ProjectClassification{}, err
	}
	planned := decimal.Zero
	plannedRevenue := decimal.Zero
	if pre != nil {
		planned = pre.TotalPlannedHours()
		plannedRevenue = pre.TotalPlannedRevenue()
	}
	actual := post.TotalActualHours()
	return ProjectClassification{
		ProjectID:      projectID,
		Classification: classifyRecords(pre, post, params.Thresholds),
		Hours:          calculation.NewDeviation(planned, actual),
		Revenue:        calculation.NewDeviation(plannedRevenue, post.TotalActualRevenue()),
	}, nil
}

// ClassifyEmployee classifies one crew member on their own planned hours.
func (s *CalculationService) ClassifyEmployee(ctx context.Context, projectID, employeeID string) (EmployeeClassification, error) {
	_, post, params, err := s.records(ctx, projectID)
	if err != nil {
		return EmployeeClassification{}, err
	}
	er, ok := post.Employee(employeeID)
	if !ok {
		return EmployeeClassification{}, fmt.Errorf("%w: %s on %s", calculation.ErrEmployeeNotFound, employeeID, projectID)
	}
	return EmployeeClassification{
		ProjectID:      projectID,
		EmployeeID:     er.EmployeeID,
		EmployeeName:   er.EmployeeName,
		Classification: calculation.Classify(er.PlannedHours, er.ActualHours, params.Thresholds),
		Hours:          calculation.NewDeviation(er.PlannedHours, er.ActualHours),
		Revenue:        calculation.NewDeviation(er.PlannedRevenue, er.ActualRevenue),
	}, nil
}

// Hours aggregates the time entries of q.ProjectID by status.
func (s *CalculationService) Hours(ctx context.Context, q calculation.HoursQuery) (calculation.HoursTotals, error) {
	entries, err := s.sources.ListTimeEntries(ctx, q.ProjectID)
	if err != nil {
		return calculation.HoursTotals{}, fmt.Errorf("load time entries: %w", err)
	}
	return calculation.Aggregate(entries, q), nil
}

// Breakdown aggregates the time entries of q.ProjectID per employee and activity.
func (s *CalculationService) Breakdown(ctx context.Context, q calculation.HoursQuery) ([]calculation.EmployeeActivityHours, error) {
	entries, err := s.sources.ListTimeEntries(ctx, q.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load time entries: %w", err)
	}
	return calculation.Breakdown(entries, q), nil
}
