package calculation

import "context"

// Project is the minimal project record the engine needs.
type Project struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	OfferID string `yaml:"offer_id,omitempty" json:"offer_id,omitempty"`
}

// ProjectSource reads projects from the external project store. GetProject
// returns an error wrapping ErrProjectNotFound for unknown IDs.
type ProjectSource interface {
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
}

// OfferSource reads offers. A missing offer is (nil, nil).
type OfferSource interface {
	GetOffer(ctx context.Context, offerID string) (*Offer, error)
}

// AssignmentSource reads employee assignments.
type AssignmentSource interface {
	ListAssignments(ctx context.Context, projectID string) ([]EmployeeAssignment, error)
}

// TimeEntrySource reads time entries of a project.
type TimeEntrySource interface {
	ListTimeEntries(ctx context.Context, projectID string) ([]TimeEntry, error)
}

// Sources bundles the read-only external collaborators.
type Sources interface {
	ProjectSource
	OfferSource
	AssignmentSource
	TimeEntrySource
}

// ParametersRepository persists the process-wide calculation parameters.
type ParametersRepository interface {
	LoadParameters(ctx context.Context) (Parameters, error)
	SaveParameters(ctx context.Context, p Parameters) error
}

// Repository persists derived records. Loads return (nil, nil) when nothing is
// stored. Each save must be atomic per project.
type Repository interface {
	LoadPreCalculation(ctx context.Context, projectID string) (*PreCalculation, error)
	SavePreCalculation(ctx context.Context, pc *PreCalculation) error
	LoadPostCalculation(ctx context.Context, projectID string) (*PostCalculation, error)
	SavePostCalculation(ctx context.Context, pc *PostCalculation) error
}
