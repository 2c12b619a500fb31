package sdk

import (
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/shopspring/decimal"
)

// Derivation is the answer of kalk_derive_precalc and kalk_save_manual_precalc.
// Notice is set when the project had nothing to plan from.
type Derivation struct {
	PreCalculation calculation.PreCalculation `json:"pre_calculation"`
	Notice         string                     `json:"notice,omitempty"`
}

// RecomputeResult is the answer of kalk_recompute.
type RecomputeResult struct {
	ProjectID        string                      `json:"project_id"`
	Pre              calculation.PreCalculation  `json:"pre_calculation"`
	Post             calculation.PostCalculation `json:"post_calculation"`
	Status           calculation.Status          `json:"status"`
	DeviationPercent decimal.Decimal             `json:"deviation_percent"`
	Written          bool                        `json:"written"`
	Notice           string                      `json:"notice,omitempty"`
}

// ProjectClassification is the traffic light of a whole project.
type ProjectClassification struct {
	ProjectID        string                `json:"project_id"`
	Status           calculation.Status    `json:"status"`
	DeviationPercent decimal.Decimal       `json:"deviation_percent"`
	Hours            calculation.Deviation `json:"hours"`
	Revenue          calculation.Deviation `json:"revenue"`
}

// EmployeeClassification is the traffic light of one crew member.
type EmployeeClassification struct {
	ProjectID        string                `json:"project_id"`
	EmployeeID       string                `json:"employee_id"`
	EmployeeName     string                `json:"employee_name"`
	Status           calculation.Status    `json:"status"`
	DeviationPercent decimal.Decimal       `json:"deviation_percent"`
	Hours            calculation.Deviation `json:"hours"`
	Revenue          calculation.Deviation `json:"revenue"`
}

// SchemaInfo describes the MCP schema version and deprecation info.
type SchemaInfo struct {
	SchemaVersion string            `json:"schema_version"`
	ServerVersion string            `json:"server_version"`
	Tools         []string          `json:"tools"`
	Deprecated    []DeprecatedField `json:"deprecated"`
}

// DeprecatedField records a field or tool that has been deprecated.
type DeprecatedField struct {
	Tool      string `json:"tool"`
	Field     string `json:"field"`
	Since     string `json:"since"`
	RemovedIn string `json:"removed_in"`
	Migration string `json:"migration"`
}
