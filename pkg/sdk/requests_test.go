package sdk

import (
	"testing"
	"time"
)

func TestParametersUpdate_Args(t *testing.T) {
	args := ParametersUpdate{HourlyRate: "75", Green: "97-103"}.args()
	if len(args) != 2 || args["hourly_rate"] != "75" || args["green"] != "97-103" {
		t.Errorf("unexpected args %v", args)
	}
	if len(ParametersUpdate{}.args()) != 0 {
		t.Error("expected no args for an empty update")
	}
}

func TestHoursRequest_Args(t *testing.T) {
	tests := []struct {
		name      string
		req       HoursRequest
		breakdown bool
		want      map[string]any
	}{
		{"project only", HoursRequest{ProjectID: "p-100"}, false, map[string]any{"project_id": "p-100"}},
		{
			"all filters",
			HoursRequest{
				ProjectID:  "p-100",
				EmployeeID: "e1",
				Activity:   "teardown",
				From:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
				To:         time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
			},
			true,
			map[string]any{
				"project_id": "p-100", "employee_id": "e1", "activity": "teardown",
				"from": "2026-06-01", "to": "2026-06-30", "breakdown": true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.req.args(tt.breakdown)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s: got %v, want %v", k, got[k], v)
				}
			}
		})
	}
}
