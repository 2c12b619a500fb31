package domain

// AuditRepository persists the append-only audit log.
type AuditRepository interface {
	RecordEvent(event Event) error
	LoadEvents() ([]Event, error)
}
