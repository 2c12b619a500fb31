package application

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/felixgeelhaar/kalk/pkg/domain/events"
)

// ParametersService reads and updates the process-wide calculation parameters.
type ParametersService struct {
	repo       calculation.ParametersRepository
	dispatcher *events.EventDispatcher
	now        func() time.Time
}

func NewParametersService(repo calculation.ParametersRepository) *ParametersService {
	return &ParametersService{repo: repo, now: time.Now}
}

// SetDispatcher sets the dispatcher that receives ParametersUpdated events.
func (s *ParametersService) SetDispatcher(dispatcher *events.EventDispatcher) {
	s.dispatcher = dispatcher
}

// Get returns the stored parameters, or the defaults when none were saved yet.
func (s *ParametersService) Get(ctx context.Context) (calculation.Parameters, error) {
	p, err := s.repo.LoadParameters(ctx)
	if err != nil {
		return calculation.Parameters{}, fmt.Errorf("load parameters: %w", err)
	}
	return p, nil
}

// Update validates and persists patch. A rejected patch returns a
// *calculation.ValidationError and leaves the stored parameters untouched.
// Saved derivations are not recomputed; only future derivations see the change.
func (s *ParametersService) Update(ctx context.Context, patch calculation.ParametersPatch, actor string) (calculation.Parameters, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return calculation.Parameters{}, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	next, err := current.Apply(patch, s.now())
	if err != nil {
		return current, err
	}
	if err := s.repo.SaveParameters(ctx, next); err != nil {
		return current, fmt.Errorf("save parameters: %w", err)
	}

	s.dispatcher.Publish(ctx, &events.ParametersUpdated{
		BaseEvent: events.NewBaseEvent(events.EventTypeParametersUpdated, events.AggregateTypeParameters, "", actor, next.LastModified),
		Changed:   changedFields(current, next),
	})
	return next, nil
}

// Reset restores the factory defaults.
func (s *ParametersService) Reset(ctx context.Context, actor string) (calculation.Parameters, error) {
	d := calculation.DefaultParameters()
	return s.Update(ctx, calculation.ParametersPatch{
		HourlyRate:   &d.HourlyRate,
		Distribution: &d.Distribution,
		RoundingRule: &d.RoundingRule,
		Green:        &d.Thresholds.Green,
		Yellow:       &d.Thresholds.Yellow,
	}, actor)
}

func changedFields(before, after calculation.Parameters) []string {
	var changed []string
	if !before.HourlyRate.Equal(after.HourlyRate) {
		changed = append(changed, "hourly_rate")
	}
	if before.Distribution != after.Distribution {
		changed = append(changed, "distribution")
	}
	if before.RoundingRule != after.RoundingRule {
		changed = append(changed, "rounding_rule")
	}
	if !rangeEqual(before.Thresholds.Green, after.Thresholds.Green) {
		changed = append(changed, FieldThresholdsGreen)
	}
	if !rangeEqual(before.Thresholds.Yellow, after.Thresholds.Yellow) {
		changed = append(changed, FieldThresholdsYellow)
	}
	return changed
}

// Field names reported in ParametersUpdated.Changed for threshold edits.
const (
	FieldThresholdsGreen  = "thresholds.green"
	FieldThresholdsYellow = "thresholds.yellow"
)

func rangeEqual(a, b calculation.Range) bool {
	return a.Min.Equal(b.Min) && a.Max.Equal(b.Max)
}
