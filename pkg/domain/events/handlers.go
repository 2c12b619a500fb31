package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/kalk/pkg/domain"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
)

// Notifier is the interface for sending notifications.
type Notifier interface {
	// Notify sends a notification with the given level, title, and message.
	Notify(ctx context.Context, level NotificationLevel, title, message string) error
}

// NotificationLevel represents the severity of a notification.
type NotificationLevel string

const (
	NotificationLevelInfo    NotificationLevel = "info"
	NotificationLevelWarning NotificationLevel = "warning"
	NotificationLevelError   NotificationLevel = "error"
)

// Invalidator marks a project's derived records as stale.
type Invalidator interface {
	Invalidate(ctx context.Context, projectID, reason string)
}

// DeviationAlertHandler reports projects whose traffic light changed.
type DeviationAlertHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewDeviationAlertHandler(notifier Notifier, logger *slog.Logger) *DeviationAlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviationAlertHandler{notifier: notifier, logger: logger}
}

// Handle processes DeviationStatusChanged events.
func (h *DeviationAlertHandler) Handle(ctx context.Context, event DomainEvent) error {
	changed, ok := event.(*DeviationStatusChanged)
	if !ok {
		return nil
	}

	level := NotificationLevelInfo
	switch changed.To {
	case calculation.StatusRed:
		level = NotificationLevelError
	case calculation.StatusYellow:
		level = NotificationLevelWarning
	}

	attrs := []any{
		"project_id", changed.AggregateID(),
		"from", changed.From,
		"to", changed.To,
		"deviation_percent", changed.DeviationPercent.StringFixed(1),
	}
	if level == NotificationLevelInfo {
		h.logger.Info("deviation status changed", attrs...)
	} else {
		h.logger.Warn("deviation status changed", attrs...)
	}

	if h.notifier == nil {
		return nil
	}
	if err := h.notifier.Notify(ctx, level, "Deviation "+string(changed.To), formatDeviationMessage(changed)); err != nil {
		h.logger.Error("failed to send deviation alert",
			"project_id", changed.AggregateID(),
			"level", level,
			"error", err)
	}
	return nil
}

// Registration returns the HandlerRegistration for this handler.
func (h *DeviationAlertHandler) Registration() HandlerRegistration {
	return HandlerRegistration{
		Name:       "DeviationAlertHandler",
		Handler:    h.Handle,
		EventTypes: []string{EventTypeDeviationStatusChanged},
	}
}

// AuditTrailHandler appends persisted changes to the audit log.
type AuditTrailHandler struct {
	audit  domain.AuditLogger
	logger *slog.Logger
}

func NewAuditTrailHandler(audit domain.AuditLogger, logger *slog.Logger) *AuditTrailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditTrailHandler{audit: audit, logger: logger}
}

// Handle records the event with its figures as metadata.
func (h *AuditTrailHandler) Handle(ctx context.Context, event DomainEvent) error {
	if h.audit == nil {
		return nil
	}
	actor := "system"
	metadata := map[string]interface{}{}
	if event.AggregateType() == AggregateTypeProject {
		metadata["project_id"] = event.AggregateID()
	}

	switch e := event.(type) {
	case *PreCalculationSaved:
		actor = e.Actor
		metadata["source"] = string(e.Source)
		metadata["planned_hours_setup"] = e.PlannedHoursSetup.String()
		metadata["planned_hours_teardown"] = e.PlannedHoursTeardown.String()
		metadata["hourly_rate"] = e.HourlyRate.String()
		metadata["fingerprint"] = e.Fingerprint
	case *PostCalculationRecomputed:
		actor = e.Actor
		metadata["actual_hours_setup"] = e.ActualHoursSetup.String()
		metadata["actual_hours_teardown"] = e.ActualHoursTeardown.String()
		metadata["status"] = string(e.Status)
		metadata["fingerprint"] = e.Fingerprint
	case *ParametersUpdated:
		actor = e.Actor
		metadata["changed"] = e.Changed
	case *DeviationStatusChanged:
		actor = e.Actor
		metadata["from"] = string(e.From)
		metadata["to"] = string(e.To)
	default:
		return nil
	}
	if actor == "" {
		actor = "system"
	}

	if err := h.audit.Log(event.EventType(), actor, metadata); err != nil {
		h.logger.Error("failed to record audit event",
			"event_type", event.EventType(),
			"error", err)
		return err
	}
	return nil
}

// Registration returns the HandlerRegistration for this handler.
func (h *AuditTrailHandler) Registration() HandlerRegistration {
	return HandlerRegistration{
		Name:    "AuditTrailHandler",
		Handler: h.Handle,
		EventTypes: []string{
			EventTypePreCalculationSaved,
			EventTypePostCalculationRecomputed,
			EventTypeParametersUpdated,
			EventTypeDeviationStatusChanged,
		},
	}
}

// InputChangeHandler turns file changes into project invalidations.
type InputChangeHandler struct {
	invalidator Invalidator
	// Affected maps a changed file to the projects whose inputs it holds.
	Affected func(ctx context.Context, path string) ([]string, error)
	logger   *slog.Logger
}

func NewInputChangeHandler(invalidator Invalidator, affected func(context.Context, string) ([]string, error), logger *slog.Logger) *InputChangeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InputChangeHandler{invalidator: invalidator, Affected: affected, logger: logger}
}

// Handle processes FileChanged events.
func (h *InputChangeHandler) Handle(ctx context.Context, event DomainEvent) error {
	changed, ok := event.(*FileChanged)
	if !ok || h.invalidator == nil || h.Affected == nil {
		return nil
	}

	projects, err := h.Affected(ctx, changed.FilePath)
	if err != nil {
		h.logger.Error("failed to resolve affected projects",
			"path", changed.FilePath,
			"error", err)
		return err
	}

	h.logger.Debug("input changed",
		"path", changed.FilePath,
		"change", changed.ChangeType,
		"projects", projects)

	reason := fmt.Sprintf("%s %s", changed.ChangeType, changed.FilePath)
	for _, id := range projects {
		h.invalidator.Invalidate(ctx, id, reason)
	}
	return nil
}

// Registration returns the HandlerRegistration for this handler.
func (h *InputChangeHandler) Registration() HandlerRegistration {
	return HandlerRegistration{
		Name:       "InputChangeHandler",
		Handler:    h.Handle,
		EventTypes: []string{EventTypeFileChanged},
	}
}

// LoggingHandler is a catch-all handler that logs all events.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a new LoggingHandler.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHandler{logger: logger}
}

// Handle logs the event details.
func (h *LoggingHandler) Handle(ctx context.Context, event DomainEvent) error {
	h.logger.Debug("domain event",
		"event_type", event.EventType(),
		"aggregate_id", event.AggregateID(),
		"aggregate_type", event.AggregateType(),
		"occurred_at", event.OccurredAt())
	return nil
}

// Registration returns the HandlerRegistration for this handler.
func (h *LoggingHandler) Registration() HandlerRegistration {
	return HandlerRegistration{
		Name:       "LoggingHandler",
		Handler:    h.Handle,
		EventTypes: []string{"*"}, // Wildcard - all events
	}
}

func formatDeviationMessage(e *DeviationStatusChanged) string {
	if e.From == "" {
		return fmt.Sprintf("Project %s is %s at %s%% of plan.", e.AggregateID(), e.To, e.DeviationPercent.StringFixed(1))
	}
	return fmt.Sprintf("Project %s moved from %s to %s at %s%% of plan.", e.AggregateID(), e.From, e.To, e.DeviationPercent.StringFixed(1))
}
