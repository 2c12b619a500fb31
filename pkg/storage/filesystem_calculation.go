package storage

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/kalk/pkg/domain"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// LoadParameters returns the saved parameters, or the defaults when none exist.
func (r *FilesystemRepository) LoadParameters(ctx context.Context) (calculation.Parameters, error) {
	data, err := r.readFile(ctx, ParametersFile)
	if err != nil {
		return calculation.Parameters{}, err
	}
	if data == nil {
		return calculation.DefaultParameters(), nil
	}

	p := calculation.DefaultParameters()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return calculation.Parameters{}, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return calculation.Parameters{}, fmt.Errorf("%s: %w", ParametersFile, err)
	}
	return p, nil
}

func (r *FilesystemRepository) SaveParameters(ctx context.Context, p calculation.Parameters) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	return r.writeFile(data, ParametersFile)
}

func recordFile(projectID string) (string, error) {
	id, err := domain.NewProjectID(projectID)
	if err != nil {
		return "", err
	}
	return id.String() + ".json", nil
}

func (r *FilesystemRepository) LoadPreCalculation(ctx context.Context, projectID string) (*calculation.PreCalculation, error) {
	var pc calculation.PreCalculation
	ok, err := r.loadRecord(ctx, PreCalcDir, projectID, &pc)
	if err != nil || !ok {
		return nil, err
	}
	return &pc, nil
}

func (r *FilesystemRepository) SavePreCalculation(ctx context.Context, pc *calculation.PreCalculation) error {
	return r.saveRecord(PreCalcDir, pc.ProjectID, pc)
}

func (r *FilesystemRepository) LoadPostCalculation(ctx context.Context, projectID string) (*calculation.PostCalculation, error) {
	var pc calculation.PostCalculation
	ok, err := r.loadRecord(ctx, PostCalcDir, projectID, &pc)
	if err != nil || !ok {
		return nil, err
	}
	return &pc, nil
}

func (r *FilesystemRepository) SavePostCalculation(ctx context.Context, pc *calculation.PostCalculation) error {
	if err := pc.CheckInvariant(); err != nil {
		return err
	}
	return r.saveRecord(PostCalcDir, pc.ProjectID, pc)
}

func (r *FilesystemRepository) loadRecord(ctx context.Context, dir, projectID string, v any) (bool, error) {
	name, err := recordFile(projectID)
	if err != nil {
		return false, err
	}
	data, err := r.readFile(ctx, dir, name)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, name, err)
	}
	return true, nil
}

func (r *FilesystemRepository) saveRecord(dir, projectID string, v any) error {
	name, err := recordFile(projectID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, name, err)
	}
	return r.writeFile(data, dir, name)
}
