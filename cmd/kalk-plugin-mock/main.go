// Command kalk-plugin-mock is a source plugin that serves ERP data from a
// single YAML document. It is used to exercise the plugin loader and the
// contract suite.
package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	domainPlugin "github.com/felixgeelhaar/kalk/pkg/domain/plugin"
	infraPlugin "github.com/felixgeelhaar/kalk/pkg/plugin"
	"github.com/hashicorp/go-plugin"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Dataset is the layout of the YAML file named by the "file" config key.
type Dataset struct {
	Projects    []calculation.Project            `yaml:"projects"`
	Offers      []calculation.Offer              `yaml:"offers"`
	Assignments []calculation.EmployeeAssignment `yaml:"assignments"`
	TimeEntries []calculation.TimeEntry          `yaml:"time_entries"`
}

type MockSource struct {
	mu   sync.RWMutex
	data Dataset
}

// Init loads the dataset. Without a "file" key a small built-in dataset is
// served; a missing file yields an empty one. fail=true makes Init fail.
func (m *MockSource) Init(config map[string]string) error {
	if config["fail"] == "true" {
		return errors.New("mock source: init failure requested")
	}
	data := builtin()
	if path := config["file"]; path != "" {
		var err error
		if data, err = load(path); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func load(path string) (Dataset, error) {
	var data Dataset
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from the workspace config
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("parse %s: %w", path, err)
	}
	return data, nil
}

func builtin() Dataset {
	day := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	return Dataset{
		Projects: []calculation.Project{{ID: "p-100", Name: "Trade fair stand", OfferID: "o-100"}},
		Offers:   []calculation.Offer{{ID: "o-100", ProjectID: "p-100", Currency: "EUR", NetAmount: decimal.NewFromInt(7200)}},
		Assignments: []calculation.EmployeeAssignment{
			{EmployeeID: "e-1", EmployeeName: "Anna", ProjectID: "p-100", Active: calculation.DateRange{From: day}},
		},
		TimeEntries: []calculation.TimeEntry{
			{ID: "t-1", EmployeeID: "e-1", ProjectID: "p-100", Date: day, Hours: decimal.NewFromInt(8), Status: calculation.EntryApproved, ActivityType: calculation.ActivitySetup},
			{ID: "t-2", EmployeeID: "e-1", ProjectID: "p-100", Date: day.AddDate(0, 0, 5), Hours: decimal.NewFromInt(4), Status: calculation.EntryPending, ActivityType: calculation.ActivityTeardown},
		},
	}
}

func (m *MockSource) ListProjects() ([]calculation.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]calculation.Project(nil), m.data.Projects...), nil
}

func (m *MockSource) GetProject(projectID string) (*calculation.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.data.Projects {
		if p.ID == projectID {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *MockSource) GetOffer(offerID string) (*calculation.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.data.Offers {
		if o.ID == offerID {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *MockSource) ListAssignments(projectID string) ([]calculation.EmployeeAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calculation.EmployeeAssignment
	for _, a := range m.data.Assignments {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockSource) ListTimeEntries(projectID string) ([]calculation.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []calculation.TimeEntry
	for _, te := range m.data.TimeEntries {
		if te.ProjectID == projectID {
			out = append(out, te)
		}
	}
	return out, nil
}

func main() {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: infraPlugin.HandshakeConfig,
		Plugins: map[string]plugin.Plugin{
			infraPlugin.PluginName: &domainPlugin.SourcePlugin{Impl: &MockSource{}},
		},
	})
}
