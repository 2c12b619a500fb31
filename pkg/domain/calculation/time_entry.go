package calculation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityType is one of the two labor activities a project is split into.
type ActivityType string

const (
	ActivitySetup    ActivityType = "setup"
	ActivityTeardown ActivityType = "teardown"
)

// Activities lists every activity in display order.
func Activities() []ActivityType {
	return []ActivityType{ActivitySetup, ActivityTeardown}
}

// Normalize maps an absent activity to setup. Entries booked without an
// activity count towards the setup column.
func (a ActivityType) Normalize() ActivityType {
	if a == "" {
		return ActivitySetup
	}
	return a
}

// IsValid reports whether a is empty or a known activity.
func (a ActivityType) IsValid() bool {
	switch a {
	case "", ActivitySetup, ActivityTeardown:
		return true
	}
	return false
}

// EntryStatus is the approval state of a time entry.
type EntryStatus string

const (
	EntryPending  EntryStatus = "pending"
	EntryApproved EntryStatus = "approved"
	EntryRejected EntryStatus = "rejected"
)

// IsValid reports whether s is a known status.
func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryPending, EntryApproved, EntryRejected:
		return true
	}
	return false
}

// DateRange is an inclusive calendar-date window. A zero bound is open.
type DateRange struct {
	From time.Time `yaml:"from,omitempty" json:"from,omitempty"`
	To   time.Time `yaml:"to,omitempty" json:"to,omitempty"`
}

// Contains compares calendar dates only; the time of day is ignored.
func (r DateRange) Contains(t time.Time) bool {
	day := dateKey(t)
	if !r.From.IsZero() && day < dateKey(r.From) {
		return false
	}
	if !r.To.IsZero() && day > dateKey(r.To) {
		return false
	}
	return true
}

// IsOpenEnded reports whether the range has no end date.
func (r DateRange) IsOpenEnded() bool {
	return r.To.IsZero()
}

// ElapsedDays returns the inclusive number of calendar days covered by the range,
// using today as the end of an open range. It is for display only and never used
// to filter entries.
func (r DateRange) ElapsedDays(today time.Time) int {
	if r.From.IsZero() {
		return 0
	}
	end := r.To
	if end.IsZero() {
		end = today
	}
	from := time.Date(r.From.Year(), r.From.Month(), r.From.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// NewTimeEntry creates a validated TimeEntry.
func NewTimeEntry(id, employeeID, projectID string, date time.Time, hours decimal.Decimal, status EntryStatus, activity ActivityType) (TimeEntry, error) {
	if id == "" {
		return TimeEntry{}, fmt.Errorf("time entry ID must not be empty")
	}
	if employeeID == "" {
		return TimeEntry{}, fmt.Errorf("employee ID must not be empty")
	}
	if projectID == "" {
		return TimeEntry{}, fmt.Errorf("project ID must not be empty")
	}
	if hours.IsNegative() {
		return TimeEntry{}, fmt.Errorf("hours must be >= 0")
	}
	if !status.IsValid() {
		return TimeEntry{}, fmt.Errorf("unknown status %q", status)
	}
	if !activity.IsValid() {
		return TimeEntry{}, fmt.Errorf("unknown activity %q", activity)
	}
	return TimeEntry{
		ID:           id,
		EmployeeID:   employeeID,
		ProjectID:    projectID,
		Date:         date,
		Hours:        hours,
		Status:       status,
		ActivityType: activity,
	}, nil
}

type TimeEntry struct {
	ID           string          `yaml:"id" json:"id"`
	EmployeeID   string          `yaml:"employee_id" json:"employee_id"`
	ProjectID    string          `yaml:"project_id" json:"project_id"`
	Date         time.Time       `yaml:"date" json:"date"`
	Hours        decimal.Decimal `yaml:"hours" json:"hours"`
	Status       EntryStatus     `yaml:"status" json:"status"`
	ActivityType ActivityType    `yaml:"activity_type,omitempty" json:"activity_type,omitempty"`
}

// Activity returns the entry's activity with the setup default applied.
func (te TimeEntry) Activity() ActivityType {
	return te.ActivityType.Normalize()
}
