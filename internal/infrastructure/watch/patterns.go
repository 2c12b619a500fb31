package watch

import (
	"path/filepath"
)

// PatternFilter selects the workspace files whose changes invalidate
// calculations. Patterns are globs matched against the base name and the full path.
type PatternFilter struct {
	Include []string
	Exclude []string
}

// NewPatternFilter creates a new pattern filter.
func NewPatternFilter(include, exclude []string) *PatternFilter {
	return &PatternFilter{
		Include: include,
		Exclude: exclude,
	}
}

// Matches reports whether path passes the filter. Excludes win over includes;
// an empty include list admits everything not excluded.
func (f *PatternFilter) Matches(path string) bool {
	if matchAny(f.Exclude, path) {
		return false
	}
	return len(f.Include) == 0 || matchAny(f.Include, path)
}

func matchAny(patterns []string, path string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
	}
	return false
}
