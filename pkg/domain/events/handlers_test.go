package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/shopspring/decimal"
)

// Mock implementations for testing

type mockNotifier struct {
	notifications []notification
	err           error
}

type notification struct {
	level   NotificationLevel
	title   string
	message string
}

func (m *mockNotifier) Notify(ctx context.Context, level NotificationLevel, title, message string) error {
	m.notifications = append(m.notifications, notification{level, title, message})
	return m.err
}

type auditCall struct {
	action   string
	actor    string
	metadata map[string]interface{}
}

type mockAuditLogger struct {
	calls []auditCall
	err   error
}

func (m *mockAuditLogger) Log(action, actor string, metadata map[string]interface{}) error {
	m.calls = append(m.calls, auditCall{action, actor, metadata})
	return m.err
}

type mockInvalidator struct {
	projects []string
	reasons  []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, projectID, reason string) {
	m.projects = append(m.projects, projectID)
	m.reasons = append(m.reasons, reason)
}

func projectBase(eventType string) BaseEvent {
	return NewBaseEvent(eventType, AggregateTypeProject, "p-100", "alice", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
}

func TestDeviationAlertHandler_Handle(t *testing.T) {
	tests := []struct {
		to    calculation.Status
		level NotificationLevel
	}{
		{calculation.StatusGreen, NotificationLevelInfo},
		{calculation.StatusYellow, NotificationLevelWarning},
		{calculation.StatusRed, NotificationLevelError},
	}

	for _, tt := range tests {
		t.Run(string(tt.to), func(t *testing.T) {
			notifier := &mockNotifier{}
			handler := NewDeviationAlertHandler(notifier, slog.Default())

			event := &DeviationStatusChanged{
				BaseEvent:        projectBase(EventTypeDeviationStatusChanged),
				From:             calculation.StatusGreen,
				To:               tt.to,
				DeviationPercent: decimal.NewFromInt(112),
			}
			if err := handler.Handle(context.Background(), event); err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			if len(notifier.notifications) != 1 {
				t.Fatalf("Expected 1 notification, got %d", len(notifier.notifications))
			}
			if notifier.notifications[0].level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, notifier.notifications[0].level)
			}
		})
	}
}

func TestDeviationAlertHandler_IgnoresOtherEvents(t *testing.T) {
	notifier := &mockNotifier{}
	handler := NewDeviationAlertHandler(notifier, nil)

	event := &ProjectInvalidated{BaseEvent: projectBase(EventTypeProjectInvalidated)}
	if err := handler.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(notifier.notifications) != 0 {
		t.Error("Expected no notification")
	}
}

func TestDeviationAlertHandler_LogsNotifierFailure(t *testing.T) {
	var buf bytes.Buffer
	notifier := &mockNotifier{err: errors.New("webhook unreachable")}
	handler := NewDeviationAlertHandler(notifier, slog.New(slog.NewTextHandler(&buf, nil)))

	event := &DeviationStatusChanged{
		BaseEvent:        projectBase(EventTypeDeviationStatusChanged),
		From:             calculation.StatusYellow,
		To:               calculation.StatusRed,
		DeviationPercent: decimal.NewFromInt(120),
	}
	if err := handler.Handle(context.Background(), event); err != nil {
		t.Fatalf("Expected delivery failures not to fail the dispatch, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "failed to send deviation alert") || !strings.Contains(out, "webhook unreachable") || !strings.Contains(out, "project_id=p-100") {
		t.Errorf("Expected the failure logged with its project, got %q", out)
	}
}

func TestAuditTrailHandler_Handle(t *testing.T) {
	audit := &mockAuditLogger{}
	handler := NewAuditTrailHandler(audit, nil)

	event := &PreCalculationSaved{
		BaseEvent:            projectBase(EventTypePreCalculationSaved),
		Source:               calculation.SourceOffer,
		PlannedHoursSetup:    decimal.NewFromInt(700),
		PlannedHoursTeardown: decimal.NewFromInt(300),
		HourlyRate:           decimal.NewFromInt(72),
		Fingerprint:          "abc",
	}
	if err := handler.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(audit.calls) != 1 {
		t.Fatalf("Expected 1 audit call, got %d", len(audit.calls))
	}
	call := audit.calls[0]
	if call.action != EventTypePreCalculationSaved || call.actor != "alice" {
		t.Errorf("Unexpected audit call %s by %s", call.action, call.actor)
	}
	if call.metadata["project_id"] != "p-100" || call.metadata["planned_hours_setup"] != "700" {
		t.Errorf("Unexpected metadata %v", call.metadata)
	}
}

func TestAuditTrailHandler_PropagatesError(t *testing.T) {
	audit := &mockAuditLogger{err: errors.New("disk full")}
	handler := NewAuditTrailHandler(audit, nil)

	event := &ParametersUpdated{
		BaseEvent: NewBaseEvent(EventTypeParametersUpdated, AggregateTypeParameters, "", "", time.Time{}),
		Changed:   []string{"hourly_rate"},
	}
	if err := handler.Handle(context.Background(), event); err == nil {
		t.Error("Expected error from audit logger")
	}
	if audit.calls[0].actor != "system" {
		t.Errorf("Expected system actor, got %q", audit.calls[0].actor)
	}
}

func TestInputChangeHandler_Handle(t *testing.T) {
	inv := &mockInvalidator{}
	handler := NewInputChangeHandler(inv, func(ctx context.Context, path string) ([]string, error) {
		return []string{"p-1", "p-2"}, nil
	}, nil)

	event := &FileChanged{
		BaseEvent:  NewBaseEvent(EventTypeFileChanged, AggregateTypeWorkspace, "", "", time.Time{}),
		FilePath:   "sources/time_entries.yaml",
		ChangeType: "write",
	}
	if err := handler.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(inv.projects) != 2 || inv.projects[1] != "p-2" {
		t.Errorf("Expected both projects invalidated, got %v", inv.projects)
	}
	if inv.reasons[0] != "write sources/time_entries.yaml" {
		t.Errorf("Unexpected reason %q", inv.reasons[0])
	}
}

func TestInputChangeHandler_ResolverError(t *testing.T) {
	inv := &mockInvalidator{}
	handler := NewInputChangeHandler(inv, func(ctx context.Context, path string) ([]string, error) {
		return nil, errors.New("unreadable")
	}, nil)

	event := &FileChanged{BaseEvent: NewBaseEvent(EventTypeFileChanged, AggregateTypeWorkspace, "", "", time.Time{})}
	if err := handler.Handle(context.Background(), event); err == nil {
		t.Error("Expected resolver error")
	}
	if len(inv.projects) != 0 {
		t.Error("Expected no invalidation")
	}
}

func TestLoggingHandler_Registration(t *testing.T) {
	reg := NewLoggingHandler(nil).Registration()
	if len(reg.EventTypes) != 1 || reg.EventTypes[0] != "*" {
		t.Errorf("Expected wildcard registration, got %v", reg.EventTypes)
	}
}
