package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"gopkg.in/yaml.v3"
)

const ProjectsFile = "projects.yaml"
const OffersFile = "offers.yaml"
const AssignmentsFile = "assignments.yaml"
const TimeEntriesFile = "time_entries.yaml"

var _ calculation.Sources = (*LocalSources)(nil)

// LocalSources reads the external collaborators from YAML files under
// .kalk/sources. Time entries are writable so imports and approvals can be
// recorded without a plugin.
type LocalSources struct {
	repo *FilesystemRepository
	mu   sync.Mutex
}

func NewLocalSources(repo *FilesystemRepository) *LocalSources {
	return &LocalSources{repo: repo}
}

func loadList[T any](ctx context.Context, r *FilesystemRepository, name string) ([]T, error) {
	data, err := r.readFile(ctx, SourcesDir, name)
	if err != nil || data == nil {
		return nil, err
	}
	var items []T
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return items, nil
}

func (s *LocalSources) GetProject(ctx context.Context, projectID string) (*calculation.Project, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].ID == projectID {
			return &projects[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", calculation.ErrProjectNotFound, projectID)
}

func (s *LocalSources) ListProjects(ctx context.Context) ([]calculation.Project, error) {
	projects, err := loadList[calculation.Project](ctx, s.repo, ProjectsFile)
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

func (s *LocalSources) GetOffer(ctx context.Context, offerID string) (*calculation.Offer, error) {
	offers, err := loadList[calculation.Offer](ctx, s.repo, OffersFile)
	if err != nil {
		return nil, err
	}
	for i := range offers {
		if offers[i].ID == offerID {
			return &offers[i], nil
		}
	}
	return nil, nil
}

func (s *LocalSources) ListAssignments(ctx context.Context, projectID string) ([]calculation.EmployeeAssignment, error) {
	all, err := loadList[calculation.EmployeeAssignment](ctx, s.repo, AssignmentsFile)
	if err != nil {
		return nil, err
	}
	var out []calculation.EmployeeAssignment
	for _, a := range all {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *LocalSources) ListTimeEntries(ctx context.Context, projectID string) ([]calculation.TimeEntry, error) {
	all, err := loadList[calculation.TimeEntry](ctx, s.repo, TimeEntriesFile)
	if err != nil {
		return nil, err
	}
	var out []calculation.TimeEntry
	for _, te := range all {
		if te.ProjectID == projectID {
			out = append(out, te)
		}
	}
	return out, nil
}

// UpsertTimeEntries replaces entries with matching IDs and appends the rest.
// It returns the previous versions of the replaced entries.
func (s *LocalSources) UpsertTimeEntries(ctx context.Context, entries []calculation.TimeEntry) ([]calculation.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := loadList[calculation.TimeEntry](ctx, s.repo, TimeEntriesFile)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(all))
	for i, te := range all {
		index[te.ID] = i
	}
	var replaced []calculation.TimeEntry
	for _, te := range entries {
		if i, ok := index[te.ID]; ok {
			replaced = append(replaced, all[i])
			all[i] = te
			continue
		}
		index[te.ID] = len(all)
		all = append(all, te)
	}
	if err := s.saveEntries(all); err != nil {
		return nil, err
	}
	return replaced, nil
}

func (s *LocalSources) SetTimeEntryStatus(ctx context.Context, entryID string, status calculation.EntryStatus) (calculation.TimeEntry, error) {
	if !status.IsValid() {
		return calculation.TimeEntry{}, fmt.Errorf("unknown status %q", status)
	}
	return s.mutateEntry(ctx, entryID, func(all []calculation.TimeEntry, i int) []calculation.TimeEntry {
		all[i].Status = status
		return all
	})
}

func (s *LocalSources) DeleteTimeEntry(ctx context.Context, entryID string) (calculation.TimeEntry, error) {
	return s.mutateEntry(ctx, entryID, func(all []calculation.TimeEntry, i int) []calculation.TimeEntry {
		return append(all[:i], all[i+1:]...)
	})
}

// mutateEntry returns the entry as it was after fn touched it, or before
// removal for deletes.
func (s *LocalSources) mutateEntry(ctx context.Context, entryID string, fn func([]calculation.TimeEntry, int) []calculation.TimeEntry) (calculation.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := loadList[calculation.TimeEntry](ctx, s.repo, TimeEntriesFile)
	if err != nil {
		return calculation.TimeEntry{}, err
	}
	for i := range all {
		if all[i].ID != entryID {
			continue
		}
		before := all[i]
		all = fn(all, i)
		result := before
		if i < len(all) && all[i].ID == entryID {
			result = all[i]
		}
		if err := s.saveEntries(all); err != nil {
			return calculation.TimeEntry{}, err
		}
		return result, nil
	}
	return calculation.TimeEntry{}, fmt.Errorf("time entry %s not found", entryID)
}

func (s *LocalSources) saveEntries(all []calculation.TimeEntry) error {
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	data, err := yaml.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to marshal time entries: %w", err)
	}
	return s.repo.writeFile(data, SourcesDir, TimeEntriesFile)
}

// ProjectsForFile lists the projects whose derived records depend on the
// given workspace file. Offers affect only projects that reference one. The
// other inputs may have lost rows, so they affect every project.
func (s *LocalSources) ProjectsForFile(ctx context.Context, path string) ([]string, error) {
	switch filepath.Base(path) {
	case OffersFile:
		return s.projectIDs(ctx, func(p calculation.Project) bool { return p.OfferID != "" })
	case ProjectsFile, AssignmentsFile, TimeEntriesFile, ParametersFile:
		return s.projectIDs(ctx, func(calculation.Project) bool { return true })
	}
	return nil, nil
}

func (s *LocalSources) projectIDs(ctx context.Context, keep func(calculation.Project) bool) ([]string, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range projects {
		if keep(p) {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}
