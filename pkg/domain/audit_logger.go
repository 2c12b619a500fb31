package domain

// AuditLogger provides a simple interface for logging audit events.
// Services should depend on this interface rather than concrete implementations.
// A "project_id" metadata entry is lifted onto Event.ProjectID.
type AuditLogger interface {
	Log(action string, actor string, metadata map[string]interface{}) error
}
