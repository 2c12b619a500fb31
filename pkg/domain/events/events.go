// Package events defines the domain events raised by the calculation engine.
package events

import (
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DomainEvent is the base interface for all domain events.
type DomainEvent interface {
	EventType() string
	AggregateID() string
	AggregateType() string
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events. AggregateID is the project ID
// for everything except parameter events.
type BaseEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	AggregateID_   string    `json:"aggregate_id"`
	AggregateType_ string    `json:"aggregate_type"`
	Timestamp      time.Time `json:"timestamp"`
	Actor          string    `json:"actor"`
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) AggregateID() string   { return e.AggregateID_ }
func (e BaseEvent) AggregateType() string { return e.AggregateType_ }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps a fresh ID and timestamp.
func NewBaseEvent(eventType, aggregateType, aggregateID, actor string, at time.Time) BaseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return BaseEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		AggregateID_:   aggregateID,
		AggregateType_: aggregateType,
		Timestamp:      at,
		Actor:          actor,
	}
}

// =============================================================================
// Calculation Events
// =============================================================================

// PreCalculationSaved is emitted when a PreCalculation was persisted, either by a
// user action or by a recompute that changed the planned figures.
type PreCalculationSaved struct {
	BaseEvent
	Source               calculation.Source `json:"source"`
	PlannedHoursSetup    decimal.Decimal    `json:"planned_hours_setup"`
	PlannedHoursTeardown decimal.Decimal    `json:"planned_hours_teardown"`
	HourlyRate           decimal.Decimal    `json:"hourly_rate"`
	Fingerprint          string             `json:"fingerprint"`
}

// PostCalculationRecomputed is emitted when a recompute wrote a changed PostCalculation.
type PostCalculationRecomputed struct {
	BaseEvent
	ActualHoursSetup    decimal.Decimal    `json:"actual_hours_setup"`
	ActualHoursTeardown decimal.Decimal    `json:"actual_hours_teardown"`
	Status              calculation.Status `json:"status"`
	Fingerprint         string             `json:"fingerprint"`
}

// DeviationStatusChanged is emitted when the project's traffic light changes colour.
type DeviationStatusChanged struct {
	BaseEvent
	From             calculation.Status `json:"from,omitempty"`
	To               calculation.Status `json:"to"`
	DeviationPercent decimal.Decimal    `json:"deviation_percent"`
}

// ProjectInvalidated is emitted when inputs of a project changed and its derived
// records are stale.
type ProjectInvalidated struct {
	BaseEvent
	Reason string `json:"reason"`
}

// ParametersUpdated is emitted after the calculation parameters were saved.
type ParametersUpdated struct {
	BaseEvent
	Changed []string `json:"changed"`
}

// =============================================================================
// File Events
// =============================================================================

// FileChanged is emitted when a watched input file is modified.
type FileChanged struct {
	BaseEvent
	FilePath   string `json:"file_path"`
	ChangeType string `json:"change_type"` // "create", "write", "remove", "rename"
}

// =============================================================================
// Event Type Constants
// =============================================================================

const (
	EventTypePreCalculationSaved       = "precalc.saved"
	EventTypePostCalculationRecomputed = "postcalc.recomputed"
	EventTypeDeviationStatusChanged    = "deviation.status_changed"
	EventTypeProjectInvalidated        = "project.invalidated"
	EventTypeParametersUpdated         = "parameters.updated"
	EventTypeFileChanged               = "file.changed"
)

// AggregateTypes
const (
	AggregateTypeProject    = "project"
	AggregateTypeParameters = "parameters"
	AggregateTypeWorkspace  = "workspace"
)
