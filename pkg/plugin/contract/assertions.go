// Package contract provides contract test assertions for kalk source plugins.
package contract

import (
	"fmt"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	domainPlugin "github.com/felixgeelhaar/kalk/pkg/domain/plugin"
)

// Result captures the outcome of a single contract assertion.
type Result struct {
	Name    string
	Passed  bool
	Message string
}

func pass(name, format string, args ...any) Result {
	return Result{Name: name, Passed: true, Message: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) Result {
	return Result{Name: name, Passed: false, Message: fmt.Sprintf(format, args...)}
}

// AssertInitSuccess verifies that Init succeeds with valid config.
func AssertInitSuccess(source domainPlugin.Source) Result {
	if err := source.Init(map[string]string{"tenant": "test"}); err != nil {
		return fail("InitSuccess", "Init failed: %v", err)
	}
	return pass("InitSuccess", "Init succeeded")
}

// AssertInitWithBadConfig verifies that Init returns an error for bad config.
func AssertInitWithBadConfig(source domainPlugin.Source) Result {
	err := source.Init(map[string]string{"fail": "true"})
	if err == nil {
		return fail("InitWithBadConfig", "expected Init to fail with fail=true config")
	}
	return pass("InitWithBadConfig", "Init correctly failed: %v", err)
}

// AssertProjectsResolvable verifies every listed project can be fetched by ID.
func AssertProjectsResolvable(source domainPlugin.Source) Result {
	projects, err := source.ListProjects()
	if err != nil {
		return fail("ProjectsResolvable", "ListProjects failed: %v", err)
	}
	for _, p := range projects {
		got, err := source.GetProject(p.ID)
		if err != nil {
			return fail("ProjectsResolvable", "GetProject(%s) failed: %v", p.ID, err)
		}
		if got == nil || got.ID != p.ID {
			return fail("ProjectsResolvable", "GetProject(%s) did not return the listed project", p.ID)
		}
	}
	return pass("ProjectsResolvable", "%d projects resolvable", len(projects))
}

// AssertUnknownProject verifies an unknown project is reported as nil, not an error.
func AssertUnknownProject(source domainPlugin.Source) Result {
	p, err := source.GetProject("kalk-contract-unknown")
	if err != nil {
		return fail("UnknownProject", "GetProject returned error for unknown ID: %v", err)
	}
	if p != nil {
		return fail("UnknownProject", "GetProject returned a project for an unknown ID")
	}
	return pass("UnknownProject", "unknown project reported as nil")
}

// AssertAssignmentsScoped verifies assignments belong to the requested project
// and carry no negative overrides.
func AssertAssignmentsScoped(source domainPlugin.Source) Result {
	projects, err := source.ListProjects()
	if err != nil {
		return fail("AssignmentsScoped", "ListProjects failed: %v", err)
	}
	for _, p := range projects {
		assignments, err := source.ListAssignments(p.ID)
		if err != nil {
			return fail("AssignmentsScoped", "ListAssignments(%s) failed: %v", p.ID, err)
		}
		for _, a := range assignments {
			if a.ProjectID != "" && a.ProjectID != p.ID {
				return fail("AssignmentsScoped", "assignment of %s belongs to %s, not %s", a.EmployeeID, a.ProjectID, p.ID)
			}
			for _, act := range calculation.Activities() {
				if v, ok := a.Override(act); ok && v.IsNegative() {
					return fail("AssignmentsScoped", "assignment of %s has a negative %s override", a.EmployeeID, act)
				}
			}
		}
	}
	return pass("AssignmentsScoped", "assignments scoped to their projects")
}

// AssertTimeEntriesValid verifies time entries are scoped and well-formed.
func AssertTimeEntriesValid(source domainPlugin.Source) Result {
	projects, err := source.ListProjects()
	if err != nil {
		return fail("TimeEntriesValid", "ListProjects failed: %v", err)
	}
	count := 0
	for _, p := range projects {
		entries, err := source.ListTimeEntries(p.ID)
		if err != nil {
			return fail("TimeEntriesValid", "ListTimeEntries(%s) failed: %v", p.ID, err)
		}
		for _, te := range entries {
			if te.ProjectID != p.ID {
				return fail("TimeEntriesValid", "entry %s belongs to %s, not %s", te.ID, te.ProjectID, p.ID)
			}
			if te.Hours.IsNegative() || !te.Status.IsValid() || !te.ActivityType.IsValid() {
				return fail("TimeEntriesValid", "entry %s is malformed", te.ID)
			}
		}
		count += len(entries)
	}
	return pass("TimeEntriesValid", "%d time entries valid", count)
}
