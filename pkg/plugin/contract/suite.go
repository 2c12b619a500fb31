package contract

import (
	"fmt"

	domainPlugin "github.com/felixgeelhaar/kalk/pkg/domain/plugin"
	infraPlugin "github.com/felixgeelhaar/kalk/pkg/plugin"
)

// ContractSuite runs all contract assertions against a plugin binary.
type ContractSuite struct {
	loader *infraPlugin.Loader
}

// NewContractSuite creates a new contract suite.
func NewContractSuite() *ContractSuite {
	return &ContractSuite{
		loader: infraPlugin.NewLoader(),
	}
}

// SuiteResult aggregates results from running the full contract suite.
type SuiteResult struct {
	Results []Result
	Passed  int
	Failed  int
}

// OK reports whether every assertion passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// RunWithSource runs the contract suite against an already-loaded source.
// InitWithBadConfig runs last so a plugin that keeps its failed state does not
// poison the data assertions.
func (s *ContractSuite) RunWithSource(source domainPlugin.Source) *SuiteResult {
	assertions := []func(domainPlugin.Source) Result{
		AssertInitSuccess,
		AssertProjectsResolvable,
		AssertUnknownProject,
		AssertAssignmentsScoped,
		AssertTimeEntriesValid,
		AssertInitWithBadConfig,
	}

	sr := &SuiteResult{}
	for _, assert := range assertions {
		result := assert(source)
		sr.Results = append(sr.Results, result)
		if result.Passed {
			sr.Passed++
		} else {
			sr.Failed++
		}
	}
	return sr
}

// RunBinary loads a plugin binary and runs the full contract suite.
func (s *ContractSuite) RunBinary(path string) (*SuiteResult, error) {
	defer s.loader.Cleanup()

	source, err := s.loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load plugin: %w", err)
	}

	return s.RunWithSource(source), nil
}
