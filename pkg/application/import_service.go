package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/felixgeelhaar/kalk/pkg/domain/events"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"
)

// TimeEntryStore is a writable time-entry source. Only the local workspace
// sources implement it; plugin sources are read-only.
type TimeEntryStore interface {
	calculation.TimeEntrySource
	// UpsertTimeEntries returns the previous versions of replaced entries.
	UpsertTimeEntries(ctx context.Context, entries []calculation.TimeEntry) ([]calculation.TimeEntry, error)
	SetTimeEntryStatus(ctx context.Context, entryID string, status calculation.EntryStatus) (calculation.TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, entryID string) (calculation.TimeEntry, error)
}

const timeEntrySchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "employee_id", "project_id", "date", "hours", "status"],
    "properties": {
      "id": { "type": "string", "minLength": 1 },
      "employee_id": { "type": "string", "minLength": 1 },
      "project_id": { "type": "string", "minLength": 1 },
      "date": { "type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$" },
      "hours": { "type": ["number", "string"] },
      "status": { "enum": ["pending", "approved", "rejected"] },
      "activity_type": { "enum": ["", "setup", "teardown"] }
    }
  }
}`

var timeEntrySchemaLoader = gojsonschema.NewStringLoader(timeEntrySchemaJSON)

type importRecord struct {
	ID           string          `json:"id"`
	EmployeeID   string          `json:"employee_id"`
	ProjectID    string          `json:"project_id"`
	Date         string          `json:"date"`
	Hours        decimal.Decimal `json:"hours"`
	Status       string          `json:"status"`
	ActivityType string          `json:"activity_type"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Projects []string `json:"projects"`
}

// ImportService maintains time entries in the local workspace and invalidates
// the projects whose actual hours they change.
type ImportService struct {
	store       TimeEntryStore
	invalidator events.Invalidator
	audit       domain.AuditLogger
}

func NewImportService(store TimeEntryStore, invalidator events.Invalidator, audit domain.AuditLogger) *ImportService {
	return &ImportService{store: store, invalidator: invalidator, audit: audit}
}

// Import validates data against the time-entry schema and upserts every entry.
// Nothing is written when any entry is rejected.
func (s *ImportService) Import(ctx context.Context, data []byte, actor string) (ImportResult, error) {
	result, err := gojsonschema.Validate(timeEntrySchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return ImportResult{}, &calculation.ValidationError{Field: "time_entries", Reason: err.Error()}
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return ImportResult{}, &calculation.ValidationError{Field: "time_entries", Reason: strings.Join(issues, "; ")}
	}

	var records []importRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return ImportResult{}, &calculation.ValidationError{Field: "time_entries", Reason: err.Error()}
	}

	entries := make([]calculation.TimeEntry, 0, len(records))
	affected := make(map[string]bool)
	for i, r := range records {
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return ImportResult{}, &calculation.ValidationError{Field: fmt.Sprintf("time_entries[%d].date", i), Reason: err.Error()}
		}
		te, err := calculation.NewTimeEntry(r.ID, r.EmployeeID, r.ProjectID, date, r.Hours,
			calculation.EntryStatus(r.Status), calculation.ActivityType(r.ActivityType))
		if err != nil {
			return ImportResult{}, &calculation.ValidationError{Field: fmt.Sprintf("time_entries[%d]", i), Reason: err.Error()}
		}
		entries = append(entries, te)
		affected[te.ProjectID] = true
	}

	replaced, err := s.store.UpsertTimeEntries(ctx, entries)
	if err != nil {
		return ImportResult{}, fmt.Errorf("store time entries: %w", err)
	}
	// An entry booked on another project before leaves that project too.
	for _, te := range replaced {
		affected[te.ProjectID] = true
	}

	projects := make([]string, 0, len(affected))
	for id := range affected {
		projects = append(projects, id)
	}
	sort.Strings(projects)
	for _, id := range projects {
		n := countFor(entries, id)
		if n == 0 {
			s.invalidate(ctx, id, "time entries moved to another project")
			continue
		}
		s.invalidate(ctx, id, "time entries imported")
		s.log("entries.imported", actor, map[string]interface{}{
			"project_id": id,
			"count":      n,
		})
	}
	return ImportResult{Imported: len(entries), Projects: projects}, nil
}

func countFor(entries []calculation.TimeEntry, projectID string) int {
	n := 0
	for _, te := range entries {
		if te.ProjectID == projectID {
			n++
		}
	}
	return n
}

// Approve marks an entry approved; it then counts as actual hours.
func (s *ImportService) Approve(ctx context.Context, entryID, actor string) (calculation.TimeEntry, error) {
	return s.setStatus(ctx, entryID, calculation.EntryApproved, actor)
}

// Reject marks an entry rejected.
func (s *ImportService) Reject(ctx context.Context, entryID, actor string) (calculation.TimeEntry, error) {
	return s.setStatus(ctx, entryID, calculation.EntryRejected, actor)
}

func (s *ImportService) setStatus(ctx context.Context, entryID string, status calculation.EntryStatus, actor string) (calculation.TimeEntry, error) {
	te, err := s.store.SetTimeEntryStatus(ctx, entryID, status)
	if err != nil {
		return calculation.TimeEntry{}, fmt.Errorf("set status of %s: %w", entryID, err)
	}
	s.invalidate(ctx, te.ProjectID, fmt.Sprintf("time entry %s %s", entryID, status))
	s.log("entries."+string(status), actor, map[string]interface{}{
		"project_id": te.ProjectID,
		"entry_id":   entryID,
		"hours":      te.Hours.String(),
	})
	return te, nil
}

// Delete removes an entry.
func (s *ImportService) Delete(ctx context.Context, entryID, actor string) (calculation.TimeEntry, error) {
	te, err := s.store.DeleteTimeEntry(ctx, entryID)
	if err != nil {
		return calculation.TimeEntry{}, fmt.Errorf("delete %s: %w", entryID, err)
	}
	s.invalidate(ctx, te.ProjectID, fmt.Sprintf("time entry %s deleted", entryID))
	s.log("entries.deleted", actor, map[string]interface{}{
		"project_id": te.ProjectID,
		"entry_id":   entryID,
	})
	return te, nil
}

func (s *ImportService) invalidate(ctx context.Context, projectID, reason string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, projectID, reason)
	}
}

func (s *ImportService) log(action, actor string, metadata map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if actor == "" {
		actor = "system"
	}
	_ = s.audit.Log(action, actor, metadata)
}
