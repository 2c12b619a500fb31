package calculation

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActualSource records where an employee's actual hours came from.
type ActualSource string

const (
	ActualFromOverride    ActualSource = "override"
	ActualFromTimeEntries ActualSource = "time_entries"
)

// EmployeeReconciliation is the planned/actual comparison of one crew member.
// HourDelta and RevenueDelta are planned − actual; positive is favorable.
type EmployeeReconciliation struct {
	EmployeeID           string          `json:"employee_id"`
	EmployeeName         string          `json:"employee_name"`
	PlannedHoursSetup    decimal.Decimal `json:"planned_hours_setup"`
	PlannedHoursTeardown decimal.Decimal `json:"planned_hours_teardown"`
	ActualHoursSetup     decimal.Decimal `json:"actual_hours_setup"`
	ActualHoursTeardown  decimal.Decimal `json:"actual_hours_teardown"`
	SetupSource          ActualSource    `json:"setup_source"`
	TeardownSource       ActualSource    `json:"teardown_source"`
	PlannedHours         decimal.Decimal `json:"planned_hours"`
	ActualHours          decimal.Decimal `json:"actual_hours"`
	HourDelta            decimal.Decimal `json:"hour_delta"`
	PlannedRevenue       decimal.Decimal `json:"planned_revenue"`
	ActualRevenue        decimal.Decimal `json:"actual_revenue"`
	RevenueDelta         decimal.Decimal `json:"revenue_delta"`
	DeviationPercent     decimal.Decimal `json:"deviation_percent"`
	Status               Status          `json:"status"`
}

// Actual returns the resolved hours for activity.
func (er EmployeeReconciliation) Actual(activity ActivityType) decimal.Decimal {
	if activity.Normalize() == ActivityTeardown {
		return er.ActualHoursTeardown
	}
	return er.ActualHoursSetup
}

// PostCalculation holds the actual column totals of a project. It is fully
// derived and replaced on every recompute.
type PostCalculation struct {
	ProjectID           string                   `json:"project_id"`
	ActualHoursSetup    decimal.Decimal          `json:"actual_hours_setup"`
	ActualHoursTeardown decimal.Decimal          `json:"actual_hours_teardown"`
	HourlyRate          decimal.Decimal          `json:"hourly_rate"`
	PerEmployee         []EmployeeReconciliation `json:"per_employee"`
	LastComputedAt      time.Time                `json:"last_computed_at"`
}

// ActualHours returns the column total for activity.
func (pc *PostCalculation) ActualHours(activity ActivityType) decimal.Decimal {
	if activity.Normalize() == ActivityTeardown {
		return pc.ActualHoursTeardown
	}
	return pc.ActualHoursSetup
}

func (pc *PostCalculation) TotalActualHours() decimal.Decimal {
	return pc.ActualHoursSetup.Add(pc.ActualHoursTeardown)
}

func (pc *PostCalculation) TotalActualRevenue() decimal.Decimal {
	return pc.TotalActualHours().Mul(pc.HourlyRate)
}

// Employee returns the row of employeeID.
func (pc *PostCalculation) Employee(employeeID string) (EmployeeReconciliation, bool) {
	for _, er := range pc.PerEmployee {
		if er.EmployeeID == employeeID {
			return er, true
		}
	}
	return EmployeeReconciliation{}, false
}

// CheckInvariant verifies that each column total equals the sum of the employee rows.
func (pc *PostCalculation) CheckInvariant() error {
	for _, act := range Activities() {
		sum := decimal.Zero
		for _, er := range pc.PerEmployee {
			sum = sum.Add(er.Actual(act))
		}
		if col := pc.ActualHours(act); !col.Equal(sum) {
			return &InvariantError{ProjectID: pc.ProjectID, Activity: act, Column: col.String(), RowSum: sum.String()}
		}
	}
	return nil
}

// ActualResolver resolves one member's actual hours for activity. ok is false
// when the resolver does not apply and the next one should be asked.
type ActualResolver interface {
	Resolve(projectID string, member CrewMember, activity ActivityType, entries []TimeEntry) (hours decimal.Decimal, source ActualSource, ok bool)
}

// OverrideResolver uses the manual override verbatim, zero included.
type OverrideResolver struct{}

func (OverrideResolver) Resolve(_ string, member CrewMember, activity ActivityType, _ []TimeEntry) (decimal.Decimal, ActualSource, bool) {
	v, ok := member.Override(activity)
	return v, ActualFromOverride, ok
}

// ApprovedEntriesResolver sums approved time entries inside the member's active
// ranges. Open-ended ranges do not exclude any entry.
type ApprovedEntriesResolver struct{}

func (ApprovedEntriesResolver) Resolve(projectID string, member CrewMember, activity ActivityType, entries []TimeEntry) (decimal.Decimal, ActualSource, bool) {
	q := HoursQuery{ProjectID: projectID, EmployeeID: member.EmployeeID, Activity: activity}
	return ApprovedHours(entries, q, member.Ranges), ActualFromTimeEntries, true
}

// DefaultActualResolvers returns the precedence override > approved time entries.
func DefaultActualResolvers() []ActualResolver {
	return []ActualResolver{OverrideResolver{}, ApprovedEntriesResolver{}}
}

// RecomputeInput is a snapshot of everything a recompute reads.
type RecomputeInput struct {
	ProjectID   string
	Pre         *PreCalculation
	Assignments []EmployeeAssignment
	Entries     []TimeEntry
	Params      Parameters
	Now         time.Time
}

// PostAggregator builds PostCalculations with ordered actual-hour resolvers.
type PostAggregator struct {
	resolvers []ActualResolver
}

func NewPostAggregator(resolvers ...ActualResolver) *PostAggregator {
	if len(resolvers) == 0 {
		resolvers = DefaultActualResolvers()
	}
	return &PostAggregator{resolvers: resolvers}
}

// Recompute derives the PostCalculation from scratch. Equal inputs give equal output.
func (a *PostAggregator) Recompute(in RecomputeInput) PostCalculation {
	rate := in.Params.HourlyRate
	if in.Pre != nil && in.Pre.HourlyRate.IsPositive() {
		rate = in.Pre.HourlyRate
	}

	post := PostCalculation{
		ProjectID:           in.ProjectID,
		ActualHoursSetup:    decimal.Zero,
		ActualHoursTeardown: decimal.Zero,
		HourlyRate:          rate,
		PerEmployee:         []EmployeeReconciliation{},
		LastComputedAt:      in.Now,
	}

	for _, m := range Crew(in.Assignments) {
		er := EmployeeReconciliation{
			EmployeeID:           m.EmployeeID,
			EmployeeName:         m.EmployeeName,
			PlannedHoursSetup:    decimal.Zero,
			PlannedHoursTeardown: decimal.Zero,
		}
		for _, act := range Activities() {
			hours, source := a.resolve(in, m, act)
			planned := decimal.Zero
			if in.Pre != nil {
				planned = in.Pre.PlannedFor(m.EmployeeID, act, in.Assignments)
			}
			if act == ActivityTeardown {
				er.ActualHoursTeardown, er.TeardownSource, er.PlannedHoursTeardown = hours, source, planned
				post.ActualHoursTeardown = post.ActualHoursTeardown.Add(hours)
			} else {
				er.ActualHoursSetup, er.SetupSource, er.PlannedHoursSetup = hours, source, planned
				post.ActualHoursSetup = post.ActualHoursSetup.Add(hours)
			}
		}
		fillTotals(&er, rate, in.Params.Thresholds)
		post.PerEmployee = append(post.PerEmployee, er)
	}
	return post
}

func (a *PostAggregator) resolve(in RecomputeInput, m CrewMember, act ActivityType) (decimal.Decimal, ActualSource) {
	for _, r := range a.resolvers {
		if hours, source, ok := r.Resolve(in.ProjectID, m, act, in.Entries); ok {
			return hours, source
		}
	}
	return decimal.Zero, ActualFromTimeEntries
}

func fillTotals(er *EmployeeReconciliation, rate decimal.Decimal, th Thresholds) {
	er.PlannedHours = er.PlannedHoursSetup.Add(er.PlannedHoursTeardown)
	er.ActualHours = er.ActualHoursSetup.Add(er.ActualHoursTeardown)
	er.HourDelta = er.PlannedHours.Sub(er.ActualHours)
	er.PlannedRevenue = er.PlannedHours.Mul(rate)
	er.ActualRevenue = er.ActualHours.Mul(rate)
	er.RevenueDelta = er.PlannedRevenue.Sub(er.ActualRevenue)
	c := Classify(er.PlannedHours, er.ActualHours, th)
	er.DeviationPercent = c.DeviationPercent
	er.Status = c.Status
}
