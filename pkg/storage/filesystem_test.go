package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/shopspring/decimal"
)

func setupRepo(t *testing.T) *FilesystemRepository {
	t.Helper()
	dir := t.TempDir()
	repo := NewFilesystemRepository(dir)
	if err := repo.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return repo
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoot(t *testing.T) {
	dir := t.TempDir()
	repo := NewFilesystemRepository(dir)
	if repo.Root() != dir {
		t.Errorf("Root() = %q, want %q", repo.Root(), dir)
	}
	if repo.IsInitialized() {
		t.Error("Expected uninitialized workspace")
	}
}

func TestInitialize(t *testing.T) {
	repo := setupRepo(t)
	if !repo.IsInitialized() {
		t.Fatal("Expected initialized workspace")
	}
	for _, dir := range []string{PreCalcDir, PostCalcDir, SourcesDir} {
		info, err := os.Stat(filepath.Join(repo.Dir(), dir))
		if err != nil || !info.IsDir() {
			t.Errorf("Expected %s directory, got %v", dir, err)
		}
	}
}

func TestResolvePath(t *testing.T) {
	repo := NewFilesystemRepository("/tmp/ws")

	tests := []struct {
		name    string
		elems   []string
		want    string
		wantErr bool
	}{
		{"plain file", []string{"parameters.yaml"}, "/tmp/ws/.kalk/parameters.yaml", false},
		{"subdirectory", []string{"precalc", "p-1.json"}, "/tmp/ws/.kalk/precalc/p-1.json", false},
		{"empty", nil, "", true},
		{"empty element", []string{"precalc", ""}, "", true},
		{"traversal", []string{"..", "secret"}, "", true},
		{"nested traversal", []string{"precalc", "..", "..", "x"}, "", true},
		{"base itself", []string{"."}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ResolvePath(tt.elems...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolvePath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParameters_DefaultsWhenMissing(t *testing.T) {
	repo := setupRepo(t)

	p, err := repo.LoadParameters(context.Background())
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if !p.HourlyRate.Equal(dec("72")) || p.Distribution.Setup != 70 {
		t.Errorf("Expected defaults, got %+v", p)
	}
}

func TestParameters_Roundtrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	p := calculation.DefaultParameters()
	p.HourlyRate = dec("85.50")
	p.Distribution = calculation.Distribution{Setup: 60, Teardown: 40}
	p.RoundingRule = calculation.RoundUp
	p.LastModified = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	if err := repo.SaveParameters(ctx, p); err != nil {
		t.Fatalf("SaveParameters: %v", err)
	}
	loaded, err := repo.LoadParameters(ctx)
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if !loaded.HourlyRate.Equal(p.HourlyRate) {
		t.Errorf("HourlyRate = %s, want 85.50", loaded.HourlyRate)
	}
	if loaded.Distribution != p.Distribution || loaded.RoundingRule != calculation.RoundUp {
		t.Errorf("Unexpected parameters %+v", loaded)
	}
	if !loaded.LastModified.Equal(p.LastModified) {
		t.Errorf("LastModified = %v", loaded.LastModified)
	}
}

func TestParameters_RejectsInvalidFile(t *testing.T) {
	repo := setupRepo(t)
	path := filepath.Join(repo.Dir(), ParametersFile)
	if err := os.WriteFile(path, []byte("distribution:\n  setup: 80\n  teardown: 30\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := repo.LoadParameters(context.Background())
	if !errors.Is(err, calculation.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestPreCalculation_Roundtrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	pc := &calculation.PreCalculation{
		ProjectID:            "p-100",
		PlannedHoursSetup:    dec("700"),
		PlannedHoursTeardown: dec("300"),
		HourlyRate:           dec("72"),
		Source:               calculation.SourceManualEntry,
		Allocations: []calculation.Allocation{
			{EmployeeID: "e1", Activity: calculation.ActivitySetup, Hours: dec("700")},
		},
		DerivedAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := repo.SavePreCalculation(ctx, pc); err != nil {
		t.Fatalf("SavePreCalculation: %v", err)
	}

	loaded, err := repo.LoadPreCalculation(ctx, "p-100")
	if err != nil {
		t.Fatalf("LoadPreCalculation: %v", err)
	}
	if loaded == nil || loaded.Fingerprint() != pc.Fingerprint() {
		t.Fatalf("Expected identical plan, got %+v", loaded)
	}

	entries, _ := os.ReadDir(filepath.Join(repo.Dir(), PreCalcDir))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("Temp file left behind: %s", e.Name())
		}
	}
}

func TestPreCalculation_Missing(t *testing.T) {
	repo := setupRepo(t)

	pc, err := repo.LoadPreCalculation(context.Background(), "p-404")
	if err != nil || pc != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", pc, err)
	}
}

func TestPreCalculation_InvalidProjectID(t *testing.T) {
	repo := setupRepo(t)

	err := repo.SavePreCalculation(context.Background(), &calculation.PreCalculation{ProjectID: "../escape"})
	if err == nil {
		t.Fatal("Expected error for project ID with path separators")
	}
	if _, err := os.Stat(filepath.Join(repo.Root(), "escape.json")); err == nil {
		t.Error("File written outside workspace")
	}
}

func TestPostCalculation_Roundtrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	pc := &calculation.PostCalculation{
		ProjectID:           "p-100",
		ActualHoursSetup:    dec("500"),
		ActualHoursTeardown: dec("200"),
		HourlyRate:          dec("72"),
		PerEmployee: []calculation.EmployeeReconciliation{
			{EmployeeID: "e1", ActualHoursSetup: dec("300"), ActualHoursTeardown: dec("200"), Status: calculation.StatusGreen},
			{EmployeeID: "e2", ActualHoursSetup: dec("200"), Status: calculation.StatusRed},
		},
		LastComputedAt: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := repo.SavePostCalculation(ctx, pc); err != nil {
		t.Fatalf("SavePostCalculation: %v", err)
	}

	loaded, err := repo.LoadPostCalculation(ctx, "p-100")
	if err != nil {
		t.Fatalf("LoadPostCalculation: %v", err)
	}
	if loaded == nil || loaded.Fingerprint() != pc.Fingerprint() {
		t.Fatalf("Expected identical record, got %+v", loaded)
	}
}

func TestPostCalculation_RejectsBrokenTotals(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	pc := &calculation.PostCalculation{
		ProjectID:        "p-100",
		ActualHoursSetup: dec("10"),
		PerEmployee: []calculation.EmployeeReconciliation{
			{EmployeeID: "e1", ActualHoursSetup: dec("9")},
		},
	}
	err := repo.SavePostCalculation(ctx, pc)
	if !errors.Is(err, calculation.ErrInvariantViolated) {
		t.Fatalf("Expected invariant error, got %v", err)
	}
	if loaded, _ := repo.LoadPostCalculation(ctx, "p-100"); loaded != nil {
		t.Error("Expected nothing stored")
	}
}

func TestEvents_AppendAndLoad(t *testing.T) {
	repo := setupRepo(t)

	events, err := repo.LoadEvents()
	if err != nil || len(events) != 0 {
		t.Fatalf("Expected no events, got %v, %v", events, err)
	}

	for _, action := range []string{"precalc.saved", "postcalc.recomputed"} {
		if err := repo.RecordEvent(domain.Event{ID: action, Action: action, ProjectID: "p-100"}); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	path := filepath.Join(repo.Dir(), EventsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()

	events, err = repo.LoadEvents()
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(events) != 2 || events[1].Action != "postcalc.recomputed" || events[0].ProjectID != "p-100" {
		t.Errorf("Unexpected events %+v", events)
	}
}
