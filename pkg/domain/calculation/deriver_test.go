package calculation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var deriveNow = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestDeriver_FromOffer(t *testing.T) {
	in := DeriveInput{
		ProjectID: "p1",
		Offer:     &Offer{ID: "o1", NetAmount: dec("72000")},
		Assignments: []EmployeeAssignment{
			{EmployeeID: "e1", ProjectID: "p1"},
			{EmployeeID: "e2", ProjectID: "p1"},
		},
		Now: deriveNow,
	}

	got, err := NewDeriver().Derive(in, DefaultParameters())
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if got.Missing != nil {
		t.Fatalf("unexpected missing prerequisite: %v", got.Missing)
	}
	pc := got.PreCalculation
	if pc.Source != SourceOffer || pc.SourceOfferID != "o1" {
		t.Errorf("expected offer source o1, got %s %q", pc.Source, pc.SourceOfferID)
	}
	if !pc.PlannedHoursSetup.Equal(dec("700")) || !pc.PlannedHoursTeardown.Equal(dec("300")) {
		t.Errorf("expected 700/300, got %s/%s", pc.PlannedHoursSetup, pc.PlannedHoursTeardown)
	}
	if !pc.HourlyRate.Equal(dec("72")) {
		t.Errorf("expected rate snapshot 72, got %s", pc.HourlyRate)
	}
	if !pc.TotalPlannedRevenue().Equal(dec("72000")) {
		t.Errorf("expected revenue 72000, got %s", pc.TotalPlannedRevenue())
	}
	if !pc.PerEmployeeHours(ActivitySetup, in.Assignments).Equal(dec("350")) {
		t.Errorf("expected 350 per employee, got %s", pc.PerEmployeeHours(ActivitySetup, in.Assignments))
	}
}

func TestDeriver_OfferLinesSkipSeparatelyBilled(t *testing.T) {
	in := DeriveInput{
		ProjectID: "p1",
		Offer: &Offer{ID: "o1", NetAmount: dec("99999"), Lines: []OfferLine{
			{Kind: LineLabor, NetAmount: dec("7200")},
			{Kind: LineMaterial, NetAmount: dec("7200")},
			{Kind: LineRental, NetAmount: dec("5000")},
			{Kind: LineUnitPrice, NetAmount: dec("1000")},
		}},
		Now: deriveNow,
	}
	got, err := NewDeriver().Derive(in, DefaultParameters())
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if total := got.PreCalculation.TotalPlannedHours(); !total.Equal(dec("200")) {
		t.Errorf("expected 200 planned hours, got %s", total)
	}
}

func TestDeriver_OverridesWinOverOffer(t *testing.T) {
	in := DeriveInput{
		ProjectID: "p1",
		Offer:     &Offer{ID: "o1", NetAmount: dec("72000")},
		Assignments: []EmployeeAssignment{
			{EmployeeID: "e2", HoursSetupOverride: ptr(dec("40")), HoursTeardownOverride: ptr(dec("10"))},
			{EmployeeID: "e1", HoursSetupOverride: ptr(dec("20"))},
			{EmployeeID: "e3"},
		},
		Now: deriveNow,
	}
	got, err := NewDeriver().Derive(in, DefaultParameters())
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	pc := got.PreCalculation
	if pc.Source != SourceManualAssignment {
		t.Fatalf("expected manual_assignment, got %s", pc.Source)
	}
	if !pc.PlannedHoursSetup.Equal(dec("60")) || !pc.PlannedHoursTeardown.Equal(dec("10")) {
		t.Errorf("expected 60/10, got %s/%s", pc.PlannedHoursSetup, pc.PlannedHoursTeardown)
	}
	if len(pc.Allocations) != 3 || pc.Allocations[0].EmployeeID != "e1" {
		t.Errorf("expected 3 sorted allocations, got %+v", pc.Allocations)
	}
	if n := pc.Contributors(ActivitySetup, in.Assignments); n != 2 {
		t.Errorf("expected 2 setup contributors, got %d", n)
	}
	if v := pc.PlannedFor("e3", ActivitySetup, in.Assignments); !v.IsZero() {
		t.Errorf("e3 has no allocation, got %s", v)
	}
}

func TestDeriver_ManualEntries(t *testing.T) {
	in := DeriveInput{
		ProjectID: "p1",
		ManualEntries: []Allocation{
			{EmployeeID: "e1", Hours: dec("8")},
			{EmployeeID: "e1", Activity: ActivityTeardown, Hours: dec("4")},
		},
		Now: deriveNow,
	}
	got, err := NewDeriver().Derive(in, DefaultParameters())
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	pc := got.PreCalculation
	if pc.Source != SourceManualEntry {
		t.Fatalf("expected manual_entry, got %s", pc.Source)
	}
	if !pc.PlannedHoursSetup.Equal(dec("8")) || !pc.PlannedHoursTeardown.Equal(dec("4")) {
		t.Errorf("expected 8/4, got %s/%s", pc.PlannedHoursSetup, pc.PlannedHoursTeardown)
	}
}

func TestDeriver_MissingPrerequisite(t *testing.T) {
	got, err := NewDeriver().Derive(DeriveInput{ProjectID: "p1", Now: deriveNow}, DefaultParameters())
	if err != nil {
		t.Fatalf("missing prerequisite must not fail: %v", err)
	}
	if !errors.Is(got.Missing, ErrMissingPrerequisite) {
		t.Fatalf("expected missing prerequisite notice, got %v", got.Missing)
	}
	if !got.PreCalculation.IsZero() {
		t.Errorf("expected zero plan, got %+v", got.PreCalculation)
	}
	if got.PreCalculation.Source != SourceManualEntry {
		t.Errorf("expected manual_entry, got %s", got.PreCalculation.Source)
	}
}

func TestDeriver_ZeroOfferIsMissing(t *testing.T) {
	in := DeriveInput{ProjectID: "p1", Offer: &Offer{ID: "o1", NetAmount: decimal.Zero}}
	got, err := NewDeriver().Derive(in, DefaultParameters())
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if got.Missing == nil {
		t.Error("expected missing prerequisite for a zero offer")
	}
}

func TestDeriver_RateSnapshot(t *testing.T) {
	in := DeriveInput{
		ProjectID:    "p1",
		Offer:        &Offer{ID: "o1", NetAmount: dec("8000")},
		RateSnapshot: dec("80"),
	}
	params := DefaultParameters()
	params.HourlyRate = dec("100")

	got, err := NewDeriver().Derive(in, params)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if !got.PreCalculation.HourlyRate.Equal(dec("80")) {
		t.Errorf("expected snapshot rate 80, got %s", got.PreCalculation.HourlyRate)
	}
	if !got.PreCalculation.TotalPlannedHours().Equal(dec("100")) {
		t.Errorf("expected 100 hours at the snapshot rate, got %s", got.PreCalculation.TotalPlannedHours())
	}
}

func TestDeriver_DistributionSnapshot(t *testing.T) {
	params := DefaultParameters()
	params.Distribution = Distribution{Setup: 50, Teardown: 50}

	tests := []struct {
		name     string
		snapshot Distribution
		setup    string
		teardown string
	}{
		{"captured split wins", Distribution{Setup: 70, Teardown: 30}, "70", "30"},
		{"no snapshot uses current split", Distribution{}, "50", "50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := DeriveInput{
				ProjectID:            "p1",
				Offer:                &Offer{ID: "o1", NetAmount: dec("7200")},
				DistributionSnapshot: tt.snapshot,
			}
			got, err := NewDeriver().Derive(in, params)
			if err != nil {
				t.Fatalf("Derive failed: %v", err)
			}
			pc := got.PreCalculation
			if !pc.PlannedHoursSetup.Equal(dec(tt.setup)) || !pc.PlannedHoursTeardown.Equal(dec(tt.teardown)) {
				t.Errorf("expected %s/%s, got %s/%s", tt.setup, tt.teardown, pc.PlannedHoursSetup, pc.PlannedHoursTeardown)
			}
			if pc.Distribution.Setup+pc.Distribution.Teardown != 100 {
				t.Errorf("expected the applied split on the record, got %+v", pc.Distribution)
			}
		})
	}
}

func TestPreCalculation_FingerprintCoversDistribution(t *testing.T) {
	a := PreCalculation{ProjectID: "p1", HourlyRate: dec("72"), Distribution: Distribution{Setup: 70, Teardown: 30}}
	b := a
	b.Distribution = Distribution{Setup: 50, Teardown: 50}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("fingerprint must change with the captured split")
	}
}

func TestDeriver_RejectsInvalidInput(t *testing.T) {
	bad := DefaultParameters()
	bad.HourlyRate = decimal.Zero
	if _, err := NewDeriver().Derive(DeriveInput{ProjectID: "p1"}, bad); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for zero rate, got %v", err)
	}

	in := DeriveInput{ProjectID: "p1", ManualEntries: []Allocation{{EmployeeID: "e1", Hours: dec("-1")}}}
	if _, err := NewDeriver().Derive(in, DefaultParameters()); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for negative hours, got %v", err)
	}
}

func TestHoursPerEmployee_NoContributors(t *testing.T) {
	if got := HoursPerEmployee(dec("30"), 0); !got.Equal(dec("30")) {
		t.Errorf("expected divisor 1, got %s", got)
	}
	if got := HoursPerEmployee(dec("30"), 3); !got.Equal(dec("10")) {
		t.Errorf("expected 10, got %s", got)
	}
}

func TestPreCalculation_FingerprintIgnoresTimestamp(t *testing.T) {
	a := PreCalculation{ProjectID: "p1", PlannedHoursSetup: dec("700"), PlannedHoursTeardown: dec("300"), HourlyRate: dec("72"), Source: SourceOffer, DerivedAt: deriveNow}
	b := a
	b.DerivedAt = deriveNow.Add(time.Hour)
	b.PlannedHoursSetup = dec("700.00")
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint should ignore timestamps and decimal scale")
	}
	b.PlannedHoursTeardown = dec("301")
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("fingerprint should change with planned hours")
	}
}
