package calculation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// EmployeeAssignment links an employee to a project. Overrides are written by the
// assignment store; the engine only reads them.
type EmployeeAssignment struct {
	EmployeeID            string           `yaml:"employee_id" json:"employee_id"`
	EmployeeName          string           `yaml:"employee_name" json:"employee_name"`
	ProjectID             string           `yaml:"project_id" json:"project_id"`
	Role                  string           `yaml:"role,omitempty" json:"role,omitempty"`
	Activities            []ActivityType   `yaml:"activities,omitempty" json:"activities,omitempty"`
	Active                DateRange        `yaml:"active" json:"active"`
	HoursSetupOverride    *decimal.Decimal `yaml:"hours_setup_override,omitempty" json:"hours_setup_override,omitempty"`
	HoursTeardownOverride *decimal.Decimal `yaml:"hours_teardown_override,omitempty" json:"hours_teardown_override,omitempty"`
}

// Override returns the manual hours for activity and whether one is set. A zero
// override is still an override.
func (a EmployeeAssignment) Override(activity ActivityType) (decimal.Decimal, bool) {
	o := a.HoursSetupOverride
	if activity.Normalize() == ActivityTeardown {
		o = a.HoursTeardownOverride
	}
	if o == nil {
		return decimal.Zero, false
	}
	return *o, true
}

// HasOverride reports whether any activity carries a manual figure.
func (a EmployeeAssignment) HasOverride() bool {
	return a.HoursSetupOverride != nil || a.HoursTeardownOverride != nil
}

// WorksOn reports whether the employee takes part in activity. An empty list means both.
func (a EmployeeAssignment) WorksOn(activity ActivityType) bool {
	if len(a.Activities) == 0 {
		return true
	}
	for _, act := range a.Activities {
		if act.Normalize() == activity.Normalize() {
			return true
		}
	}
	return false
}

// CrewMember merges every assignment of one employee on a project.
type CrewMember struct {
	EmployeeID   string
	EmployeeName string
	Ranges       []DateRange
	Overrides    map[ActivityType]decimal.Decimal
	worksOn      map[ActivityType]bool
}

// Override returns the summed manual hours of the member for activity.
func (m CrewMember) Override(activity ActivityType) (decimal.Decimal, bool) {
	v, ok := m.Overrides[activity.Normalize()]
	return v, ok
}

// WorksOn reports whether any of the member's assignments covers activity.
func (m CrewMember) WorksOn(activity ActivityType) bool {
	return m.worksOn[activity.Normalize()]
}

// Crew groups assignments by employee, ordered by employee ID so output does not
// depend on store ordering.
func Crew(assignments []EmployeeAssignment) []CrewMember {
	byID := make(map[string]*CrewMember)
	var order []string
	for _, a := range assignments {
		m, ok := byID[a.EmployeeID]
		if !ok {
			m = &CrewMember{
				EmployeeID: a.EmployeeID,
				Overrides:  make(map[ActivityType]decimal.Decimal),
				worksOn:    make(map[ActivityType]bool),
			}
			byID[a.EmployeeID] = m
			order = append(order, a.EmployeeID)
		}
		if m.EmployeeName == "" {
			m.EmployeeName = a.EmployeeName
		}
		m.Ranges = append(m.Ranges, a.Active)
		for _, act := range Activities() {
			if v, ok := a.Override(act); ok {
				m.Overrides[act] = m.Overrides[act].Add(v)
			}
			if a.WorksOn(act) {
				m.worksOn[act] = true
			}
		}
	}

	sort.Strings(order)
	members := make([]CrewMember, 0, len(order))
	for _, id := range order {
		members = append(members, *byID[id])
	}
	return members
}
