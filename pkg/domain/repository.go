package domain

import "github.com/felixgeelhaar/kalk/pkg/domain/calculation"

// WorkspaceRepository handles the persistence of kalk artifacts in the .kalk/ directory.
type WorkspaceRepository interface {
	Initialize() error
	IsInitialized() bool
	calculation.ParametersRepository
	calculation.Repository
	AuditRepository
}
