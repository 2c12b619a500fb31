package calculation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// HoursQuery filters time entries for aggregation. Empty fields match everything.
type HoursQuery struct {
	ProjectID  string
	EmployeeID string
	Activity   ActivityType
	Range      DateRange
}

func (q HoursQuery) matches(te TimeEntry) bool {
	if te.ProjectID != q.ProjectID {
		return false
	}
	if q.EmployeeID != "" && te.EmployeeID != q.EmployeeID {
		return false
	}
	if q.Activity != "" && te.Activity() != q.Activity.Normalize() {
		return false
	}
	return q.Range.Contains(te.Date)
}

// HoursTotals are status-separated hour sums. Callers decide which statuses count.
type HoursTotals struct {
	ApprovedHours decimal.Decimal `json:"approved_hours"`
	PendingHours  decimal.Decimal `json:"pending_hours"`
	RejectedHours decimal.Decimal `json:"rejected_hours"`
	TotalHours    decimal.Decimal `json:"total_hours"`
	EntryCount    int             `json:"entry_count"`
}

func (t *HoursTotals) add(te TimeEntry) {
	switch te.Status {
	case EntryApproved:
		t.ApprovedHours = t.ApprovedHours.Add(te.Hours)
	case EntryPending:
		t.PendingHours = t.PendingHours.Add(te.Hours)
	case EntryRejected:
		t.RejectedHours = t.RejectedHours.Add(te.Hours)
	}
	t.TotalHours = t.TotalHours.Add(te.Hours)
	t.EntryCount++
}

// Aggregate sums the entries matching q. An empty result is a valid zero.
func Aggregate(entries []TimeEntry, q HoursQuery) HoursTotals {
	var totals HoursTotals
	for _, te := range entries {
		if q.matches(te) {
			totals.add(te)
		}
	}
	return totals
}

// ApprovedHours sums approved entries that match q and fall into any of ranges.
// Each entry is counted once even when ranges overlap.
func ApprovedHours(entries []TimeEntry, q HoursQuery, ranges []DateRange) decimal.Decimal {
	sum := decimal.Zero
	for _, te := range entries {
		if te.Status != EntryApproved || !q.matches(te) {
			continue
		}
		if len(ranges) > 0 && !anyContains(ranges, te) {
			continue
		}
		sum = sum.Add(te.Hours)
	}
	return sum
}

func anyContains(ranges []DateRange, te TimeEntry) bool {
	for _, r := range ranges {
		if r.Contains(te.Date) {
			return true
		}
	}
	return false
}

// EmployeeActivityHours is one row of a Breakdown.
type EmployeeActivityHours struct {
	EmployeeID string       `json:"employee_id"`
	Activity   ActivityType `json:"activity"`
	HoursTotals
}

// Breakdown groups the entries matching q by employee and activity, sorted by
// employee then activity.
func Breakdown(entries []TimeEntry, q HoursQuery) []EmployeeActivityHours {
	type key struct {
		employee string
		activity ActivityType
	}
	groups := make(map[key]*HoursTotals)
	for _, te := range entries {
		if !q.matches(te) {
			continue
		}
		k := key{te.EmployeeID, te.Activity()}
		if groups[k] == nil {
			groups[k] = &HoursTotals{}
		}
		groups[k].add(te)
	}

	rows := make([]EmployeeActivityHours, 0, len(groups))
	for k, t := range groups {
		rows = append(rows, EmployeeActivityHours{EmployeeID: k.employee, Activity: k.activity, HoursTotals: *t})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EmployeeID != rows[j].EmployeeID {
			return rows[i].EmployeeID < rows[j].EmployeeID
		}
		return rows[i].Activity < rows[j].Activity
	})
	return rows
}
