package calculation

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeriveInput is a snapshot of everything a derivation reads.
type DeriveInput struct {
	ProjectID     string
	Offer         *Offer
	Assignments   []EmployeeAssignment
	ManualEntries []Allocation
	// RateSnapshot, when positive, replaces the parameter rate so a re-derivation
	// keeps the rate captured when the project was first planned.
	RateSnapshot decimal.Decimal
	// DistributionSnapshot, when it adds up to 100, replaces the parameter
	// distribution for the same reason.
	DistributionSnapshot Distribution
	Now                  time.Time
}

// Plan is the output of a single planning strategy.
type Plan struct {
	Setup       decimal.Decimal
	Teardown    decimal.Decimal
	Allocations []Allocation
	OfferID     string
}

// PlanningStrategy produces planned hours from one kind of input. ok is false
// when the strategy has nothing to work with.
type PlanningStrategy interface {
	Source() Source
	Plan(in DeriveInput, params Parameters, rate decimal.Decimal) (plan Plan, ok bool)
}

// OverrideStrategy sums the manual hour overrides of all assignments.
type OverrideStrategy struct{}

func (OverrideStrategy) Source() Source { return SourceManualAssignment }

func (OverrideStrategy) Plan(in DeriveInput, _ Parameters, _ decimal.Decimal) (Plan, bool) {
	var allocs []Allocation
	for _, a := range in.Assignments {
		for _, act := range Activities() {
			if v, ok := a.Override(act); ok {
				allocs = append(allocs, Allocation{EmployeeID: a.EmployeeID, Activity: act, Hours: v})
			}
		}
	}
	if len(allocs) == 0 {
		return Plan{}, false
	}
	return planFromAllocations(allocs), true
}

// OfferStrategy converts the offer's planning amount into hours at the hourly
// rate and splits them by the configured distribution.
type OfferStrategy struct{}

func (OfferStrategy) Source() Source { return SourceOffer }

func (OfferStrategy) Plan(in DeriveInput, params Parameters, rate decimal.Decimal) (Plan, bool) {
	if in.Offer == nil {
		return Plan{}, false
	}
	amount := in.Offer.PlanningAmount()
	if !amount.IsPositive() {
		return Plan{}, false
	}
	total := amount.Div(rate)
	setup := total.Mul(decimal.NewFromInt(int64(params.Distribution.Setup))).Div(decimal.NewFromInt(100))
	return Plan{
		Setup:    setup,
		Teardown: total.Sub(setup),
		OfferID:  in.Offer.ID,
	}, true
}

// ManualEntryStrategy sums per-employee figures typed in by a user.
type ManualEntryStrategy struct{}

func (ManualEntryStrategy) Source() Source { return SourceManualEntry }

func (ManualEntryStrategy) Plan(in DeriveInput, _ Parameters, _ decimal.Decimal) (Plan, bool) {
	if len(in.ManualEntries) == 0 {
		return Plan{}, false
	}
	allocs := make([]Allocation, len(in.ManualEntries))
	for i, e := range in.ManualEntries {
		e.Activity = e.Activity.Normalize()
		allocs[i] = e
	}
	return planFromAllocations(allocs), true
}

func planFromAllocations(allocs []Allocation) Plan {
	sortAllocations(allocs)
	p := Plan{Setup: decimal.Zero, Teardown: decimal.Zero, Allocations: allocs}
	for _, a := range allocs {
		if a.Activity == ActivityTeardown {
			p.Teardown = p.Teardown.Add(a.Hours)
		} else {
			p.Setup = p.Setup.Add(a.Hours)
		}
	}
	return p
}

// DefaultPlanningStrategies returns the precedence override > offer > manual entry.
func DefaultPlanningStrategies() []PlanningStrategy {
	return []PlanningStrategy{OverrideStrategy{}, OfferStrategy{}, ManualEntryStrategy{}}
}

// Derivation is the result of Derive. Missing is set, and the PreCalculation is
// zero-valued, when no strategy applied.
type Derivation struct {
	PreCalculation PreCalculation
	Missing        error
}

// Deriver evaluates planning strategies in order; the first that applies wins.
type Deriver struct {
	strategies []PlanningStrategy
}

func NewDeriver(strategies ...PlanningStrategy) *Deriver {
	if len(strategies) == 0 {
		strategies = DefaultPlanningStrategies()
	}
	return &Deriver{strategies: strategies}
}

// Derive builds the PreCalculation for in. It only fails on invalid input.
func (d *Deriver) Derive(in DeriveInput, params Parameters) (Derivation, error) {
	if err := params.Validate(); err != nil {
		return Derivation{}, err
	}
	rate := params.HourlyRate
	if in.RateSnapshot.IsPositive() {
		rate = in.RateSnapshot
	}
	if in.DistributionSnapshot.IsValid() {
		params.Distribution = in.DistributionSnapshot
	}
	if err := validateRate(rate); err != nil {
		return Derivation{}, err
	}
	for _, e := range in.ManualEntries {
		if e.EmployeeID == "" {
			return Derivation{}, invalid("manual_entries", "employee ID must not be empty")
		}
		if !e.Activity.IsValid() {
			return Derivation{}, invalid("manual_entries", "unknown activity %q", e.Activity)
		}
		if e.Hours.IsNegative() {
			return Derivation{}, invalid("manual_entries", "hours for %s must be >= 0", e.EmployeeID)
		}
	}

	pc := PreCalculation{
		ProjectID:            in.ProjectID,
		PlannedHoursSetup:    decimal.Zero,
		PlannedHoursTeardown: decimal.Zero,
		HourlyRate:           rate,
		Distribution:         params.Distribution,
		DerivedAt:            in.Now,
	}
	for _, s := range d.strategies {
		plan, ok := s.Plan(in, params, rate)
		if !ok {
			continue
		}
		pc.PlannedHoursSetup = plan.Setup
		pc.PlannedHoursTeardown = plan.Teardown
		pc.Allocations = plan.Allocations
		pc.SourceOfferID = plan.OfferID
		pc.Source = s.Source()
		return Derivation{PreCalculation: pc}, nil
	}

	// Nothing to plan from: a zero plan that waits for manual entry.
	pc.Source = SourceManualEntry
	return Derivation{
		PreCalculation: pc,
		Missing:        &MissingPrerequisiteError{ProjectID: in.ProjectID},
	}, nil
}
