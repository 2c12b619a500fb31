package calculation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Source records which strategy produced a PreCalculation.
type Source string

const (
	SourceOffer            Source = "offer"
	SourceManualAssignment Source = "manual_assignment"
	SourceManualEntry      Source = "manual_entry"
)

// Allocation is a planned hour figure for one employee and activity.
type Allocation struct {
	EmployeeID string          `yaml:"employee_id" json:"employee_id"`
	Activity   ActivityType    `yaml:"activity" json:"activity"`
	Hours      decimal.Decimal `yaml:"hours" json:"hours"`
}

// PreCalculation holds the planned column totals of a project. HourlyRate and
// Distribution are captured at derivation time; later parameter edits do not
// touch them.
type PreCalculation struct {
	ProjectID            string          `json:"project_id"`
	PlannedHoursSetup    decimal.Decimal `json:"planned_hours_setup"`
	PlannedHoursTeardown decimal.Decimal `json:"planned_hours_teardown"`
	HourlyRate           decimal.Decimal `json:"hourly_rate"`
	Distribution         Distribution    `json:"distribution"`
	Source               Source          `json:"source"`
	SourceOfferID        string          `json:"source_offer_id,omitempty"`
	Allocations          []Allocation    `json:"allocations,omitempty"`
	DerivedAt            time.Time       `json:"derived_at"`
}

// PlannedHours returns the column total for activity.
func (pc *PreCalculation) PlannedHours(activity ActivityType) decimal.Decimal {
	if activity.Normalize() == ActivityTeardown {
		return pc.PlannedHoursTeardown
	}
	return pc.PlannedHoursSetup
}

func (pc *PreCalculation) PlannedRevenueSetup() decimal.Decimal {
	return pc.PlannedHoursSetup.Mul(pc.HourlyRate)
}

func (pc *PreCalculation) PlannedRevenueTeardown() decimal.Decimal {
	return pc.PlannedHoursTeardown.Mul(pc.HourlyRate)
}

func (pc *PreCalculation) TotalPlannedHours() decimal.Decimal {
	return pc.PlannedHoursSetup.Add(pc.PlannedHoursTeardown)
}

func (pc *PreCalculation) TotalPlannedRevenue() decimal.Decimal {
	return pc.PlannedRevenueSetup().Add(pc.PlannedRevenueTeardown())
}

// IsZero reports whether nothing has been planned yet.
func (pc *PreCalculation) IsZero() bool {
	return pc.PlannedHoursSetup.IsZero() && pc.PlannedHoursTeardown.IsZero()
}

// HoursPerEmployee divides a column total by the number of contributing
// employees, using 1 when nobody contributes.
func HoursPerEmployee(columnTotal decimal.Decimal, contributors int) decimal.Decimal {
	if contributors < 1 {
		contributors = 1
	}
	return columnTotal.Div(decimal.NewFromInt(int64(contributors)))
}

// Contributors counts the employees with planned hours in activity. Without
// allocations (offer source) every assigned employee working on the activity counts.
func (pc *PreCalculation) Contributors(activity ActivityType, assignments []EmployeeAssignment) int {
	activity = activity.Normalize()
	if len(pc.Allocations) > 0 {
		seen := make(map[string]bool)
		for _, a := range pc.Allocations {
			if a.Activity.Normalize() == activity && a.Hours.IsPositive() {
				seen[a.EmployeeID] = true
			}
		}
		return len(seen)
	}
	n := 0
	for _, m := range Crew(assignments) {
		if m.WorksOn(activity) {
			n++
		}
	}
	return n
}

// PerEmployeeHours is the display split of a column total.
func (pc *PreCalculation) PerEmployeeHours(activity ActivityType, assignments []EmployeeAssignment) decimal.Decimal {
	return HoursPerEmployee(pc.PlannedHours(activity), pc.Contributors(activity, assignments))
}

// PlannedFor returns the planned hours of one employee for activity. Allocated
// plans are exact; offer plans split the column evenly across participants.
func (pc *PreCalculation) PlannedFor(employeeID string, activity ActivityType, assignments []EmployeeAssignment) decimal.Decimal {
	activity = activity.Normalize()
	if len(pc.Allocations) > 0 {
		sum := decimal.Zero
		for _, a := range pc.Allocations {
			if a.EmployeeID == employeeID && a.Activity.Normalize() == activity {
				sum = sum.Add(a.Hours)
			}
		}
		return sum
	}
	for _, m := range Crew(assignments) {
		if m.EmployeeID == employeeID && m.WorksOn(activity) {
			return pc.PerEmployeeHours(activity, assignments)
		}
	}
	return decimal.Zero
}

// DisplayHours rounds a figure for presentation with the configured rule.
func DisplayHours(hours decimal.Decimal, rule RoundingRule) int64 {
	return rule.Apply(hours).IntPart()
}

func sortAllocations(allocs []Allocation) {
	sort.SliceStable(allocs, func(i, j int) bool {
		if allocs[i].EmployeeID != allocs[j].EmployeeID {
			return allocs[i].EmployeeID < allocs[j].EmployeeID
		}
		return allocs[i].Activity < allocs[j].Activity
	})
}
