package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// idPattern matches valid ID formats: alphanumeric start, then alphanumerics,
// dots, hyphens or underscores. Project IDs double as file names, so path
// separators are never accepted.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ProjectID represents a validated project identifier.
type ProjectID struct {
	value string
}

// NewProjectID creates a new ProjectID from a string value.
// Returns an error if the value is invalid.
func NewProjectID(value string) (ProjectID, error) {
	value, err := validateID("project", value)
	if err != nil {
		return ProjectID{}, err
	}
	return ProjectID{value: value}, nil
}

// MustProjectID creates a ProjectID or panics if invalid. Use only in tests.
func MustProjectID(value string) ProjectID {
	id, err := NewProjectID(value)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the string representation of the ProjectID.
func (id ProjectID) String() string {
	return id.value
}

// IsZero returns true if the ProjectID is empty.
func (id ProjectID) IsZero() bool {
	return id.value == ""
}

// EmployeeID represents a validated employee identifier.
type EmployeeID struct {
	value string
}

// NewEmployeeID creates a new EmployeeID from a string value.
func NewEmployeeID(value string) (EmployeeID, error) {
	value, err := validateID("employee", value)
	if err != nil {
		return EmployeeID{}, err
	}
	return EmployeeID{value: value}, nil
}

// String returns the string representation of the EmployeeID.
func (id EmployeeID) String() string {
	return id.value
}

func validateID(kind, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s ID cannot be empty", kind)
	}
	if !idPattern.MatchString(value) {
		return "", fmt.Errorf("invalid %s ID format: %s", kind, value)
	}
	return value, nil
}
