package application_test

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/kalk/pkg/domain"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
)

type MockRepo struct {
	mu          sync.Mutex
	Params      *calculation.Parameters
	Pre         map[string]*calculation.PreCalculation
	Post        map[string]*calculation.PostCalculation
	Events      []domain.Event
	PreSaves    int
	PostSaves   int
	Initialized bool
	SaveError   error
	LoadError   error
}

func NewMockRepo() *MockRepo {
	return &MockRepo{
		Pre:  make(map[string]*calculation.PreCalculation),
		Post: make(map[string]*calculation.PostCalculation),
	}
}

func (m *MockRepo) Initialize() error   { m.Initialized = true; return nil }
func (m *MockRepo) IsInitialized() bool { return m.Initialized }

func (m *MockRepo) LoadParameters(ctx context.Context) (calculation.Parameters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Params == nil {
		return calculation.DefaultParameters(), m.LoadError
	}
	return *m.Params, m.LoadError
}

func (m *MockRepo) SaveParameters(ctx context.Context, p calculation.Parameters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Params = &p
	return nil
}

func (m *MockRepo) LoadPreCalculation(ctx context.Context, projectID string) (*calculation.PreCalculation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.Pre[projectID]
	if !ok {
		return nil, m.LoadError
	}
	cp := *pc
	return &cp, m.LoadError
}

func (m *MockRepo) SavePreCalculation(ctx context.Context, pc *calculation.PreCalculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	cp := *pc
	m.Pre[pc.ProjectID] = &cp
	m.PreSaves++
	return nil
}

func (m *MockRepo) LoadPostCalculation(ctx context.Context, projectID string) (*calculation.PostCalculation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.Post[projectID]
	if !ok {
		return nil, m.LoadError
	}
	cp := *pc
	return &cp, m.LoadError
}

func (m *MockRepo) SavePostCalculation(ctx context.Context, pc *calculation.PostCalculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	cp := *pc
	m.Post[pc.ProjectID] = &cp
	m.PostSaves++
	return nil
}

func (m *MockRepo) RecordEvent(e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return m.SaveError
}

func (m *MockRepo) LoadEvents() ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.Events...), m.LoadError
}

// fakeSources serves projects, offers, assignments and time entries from memory.
// When gate is set, ListTimeEntries signals entered and waits for gate to close.
type fakeSources struct {
	mu          sync.Mutex
	Projects    []calculation.Project
	Offers      map[string]*calculation.Offer
	Assignments map[string][]calculation.EmployeeAssignment
	Entries     []calculation.TimeEntry
	Err         error

	gate    chan struct{}
	entered chan struct{}
}

func newFakeSources() *fakeSources {
	return &fakeSources{
		Offers:      make(map[string]*calculation.Offer),
		Assignments: make(map[string][]calculation.EmployeeAssignment),
	}
}

func (f *fakeSources) ListProjects(ctx context.Context) ([]calculation.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calculation.Project(nil), f.Projects...), f.Err
}

func (f *fakeSources) GetProject(ctx context.Context, projectID string) (*calculation.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	for _, p := range f.Projects {
		if p.ID == projectID {
			cp := p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", calculation.ErrProjectNotFound, projectID)
}

func (f *fakeSources) GetOffer(ctx context.Context, offerID string) (*calculation.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Offers[offerID], f.Err
}

func (f *fakeSources) ListAssignments(ctx context.Context, projectID string) ([]calculation.EmployeeAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calculation.EmployeeAssignment(nil), f.Assignments[projectID]...), f.Err
}

func (f *fakeSources) ListTimeEntries(ctx context.Context, projectID string) ([]calculation.TimeEntry, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []calculation.TimeEntry
	for _, te := range f.Entries {
		if te.ProjectID == projectID {
			out = append(out, te)
		}
	}
	return out, f.Err
}

func (f *fakeSources) UpsertTimeEntries(ctx context.Context, entries []calculation.TimeEntry) ([]calculation.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var previous []calculation.TimeEntry
	for _, te := range entries {
		replaced := false
		for i := range f.Entries {
			if f.Entries[i].ID == te.ID {
				previous = append(previous, f.Entries[i])
				f.Entries[i] = te
				replaced = true
			}
		}
		if !replaced {
			f.Entries = append(f.Entries, te)
		}
	}
	sort.SliceStable(f.Entries, func(i, j int) bool { return f.Entries[i].ID < f.Entries[j].ID })
	return previous, nil
}

func (f *fakeSources) SetTimeEntryStatus(ctx context.Context, entryID string, status calculation.EntryStatus) (calculation.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Entries {
		if f.Entries[i].ID == entryID {
			f.Entries[i].Status = status
			return f.Entries[i], nil
		}
	}
	return calculation.TimeEntry{}, fmt.Errorf("time entry %s not found", entryID)
}

func (f *fakeSources) DeleteTimeEntry(ctx context.Context, entryID string) (calculation.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, te := range f.Entries {
		if te.ID == entryID {
			f.Entries = append(f.Entries[:i], f.Entries[i+1:]...)
			return te, nil
		}
	}
	return calculation.TimeEntry{}, fmt.Errorf("time entry %s not found", entryID)
}

// manualScheduler keeps scheduled callbacks until Flush runs them.
type manualScheduler struct {
	mu      sync.Mutex
	pending map[string]func()
	keys    []string
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{pending: make(map[string]func())}
}

func (s *manualScheduler) Schedule(key string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = fn
	s.keys = append(s.keys, key)
}

func (s *manualScheduler) Stop() {}

func (s *manualScheduler) Flush() {
	s.mu.Lock()
	fns := s.pending
	s.pending = make(map[string]func())
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// mockAuditLogger records audit events for test assertions.
type mockAuditLogger struct {
	Events []auditEvent
}

type auditEvent struct {
	Action   string
	Actor    string
	Metadata map[string]interface{}
}

func (m *mockAuditLogger) Log(action string, actor string, metadata map[string]interface{}) error {
	m.Events = append(m.Events, auditEvent{Action: action, Actor: actor, Metadata: metadata})
	return nil
}

type mockInvalidator struct {
	projects []string
	reasons  []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, projectID, reason string) {
	m.projects = append(m.projects, projectID)
	m.reasons = append(m.reasons, reason)
}
