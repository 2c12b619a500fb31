package sdk

import "time"

// ParametersUpdate lists the parameters to change. Empty fields are kept.
type ParametersUpdate struct {
	HourlyRate   string // decimal, e.g. "72.50"
	Distribution string // setup/teardown, e.g. "70/30"
	RoundingRule string
	Green        string // e.g. "95-105"
	Yellow       string
}

func (u ParametersUpdate) args() map[string]any {
	args := map[string]any{}
	set := func(key, v string) {
		if v != "" {
			args[key] = v
		}
	}
	set("hourly_rate", u.HourlyRate)
	set("distribution", u.Distribution)
	set("rounding_rule", u.RoundingRule)
	set("green", u.Green)
	set("yellow", u.Yellow)
	return args
}

// HoursRequest filters the time entries of one project. Zero fields match all.
type HoursRequest struct {
	ProjectID  string
	EmployeeID string
	Activity   string
	From       time.Time
	To         time.Time
}

func (r HoursRequest) args(breakdown bool) map[string]any {
	args := map[string]any{"project_id": r.ProjectID}
	if r.EmployeeID != "" {
		args["employee_id"] = r.EmployeeID
	}
	if r.Activity != "" {
		args["activity"] = r.Activity
	}
	if !r.From.IsZero() {
		args["from"] = r.From.Format("2006-01-02")
	}
	if !r.To.IsZero() {
		args["to"] = r.To.Format("2006-01-02")
	}
	if breakdown {
		args["breakdown"] = true
	}
	return args
}
