package sdk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/felixgeelhaar/mcp-go/client"
	"github.com/goccy/go-json"
)

// Client is a typed Go client for the kalk MCP server.
type Client struct {
	mcp         *client.Client
	retryCfg    retry.Config
	timeout     time.Duration
	checkSchema bool
}

// NewClient creates a new SDK client wrapping the given MCP transport.
func NewClient(transport client.Transport, opts ...Option) *Client {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Client{
		mcp:         client.New(transport, client.WithTimeout(o.timeout)),
		timeout:     o.timeout,
		checkSchema: o.checkSchema,
		retryCfg: retry.Config{
			MaxAttempts:   o.maxAttempts,
			InitialDelay:  o.initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Initialize performs the MCP initialize handshake. With WithSchemaCheck it
// also verifies the server's tool schema version.
func (c *Client) Initialize(ctx context.Context) (*client.ServerInfo, error) {
	info, err := c.mcp.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	if c.checkSchema {
		if err := c.Compatible(ctx); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// call invokes a tool with retry.
func (c *Client) call(ctx context.Context, tool string, args map[string]any) (*client.ToolResult, error) {
	r := retry.New[*client.ToolResult](c.retryCfg)
	result, err := r.Do(ctx, func(ctx context.Context) (*client.ToolResult, error) {
		return c.mcp.CallTool(ctx, tool, args)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", tool, err)
	}
	if result.IsError {
		msg := ""
		if len(result.Content) > 0 {
			msg = result.Content[0].Text
		}
		return nil, &ToolError{Tool: tool, Message: msg}
	}
	return result, nil
}

// unmarshalText extracts Content[0].Text from a tool result and unmarshals it as JSON.
func unmarshalText[T any](result *client.ToolResult) (*T, error) {
	text, err := textResult(result)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &v, nil
}

// textResult extracts Content[0].Text from a tool result.
func textResult(result *client.ToolResult) (string, error) {
	if len(result.Content) == 0 {
		return "", ErrNoContent
	}
	return result.Content[0].Text, nil
}

// isJSON tells stored records apart from the plain-text notice the server
// sends when nothing is stored yet.
func isJSON(result *client.ToolResult) bool {
	text, err := textResult(result)
	if err != nil {
		return false
	}
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[")
}

// --- Schema ---

// GetSchema reads the kalk://schema resource from the server.
func (c *Client) GetSchema(ctx context.Context) (*SchemaInfo, error) {
	rc, err := c.mcp.ReadResource(ctx, "kalk://schema")
	if err != nil {
		return nil, fmt.Errorf("read schema resource: %w", err)
	}
	var info SchemaInfo
	if err := json.Unmarshal([]byte(rc.Text), &info); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return &info, nil
}

// Compatible checks if the server schema is compatible with this SDK version.
// Returns nil if compatible, error with details if not.
func (c *Client) Compatible(ctx context.Context) error {
	info, err := c.GetSchema(ctx)
	if err != nil {
		return fmt.Errorf("check compatibility: %w", err)
	}
	serverMajor := majorVersion(info.SchemaVersion)
	if serverMajor != SupportedSchemaMajor {
		return fmt.Errorf("incompatible schema: server=%s (major %s), sdk supports major %s",
			info.SchemaVersion, serverMajor, SupportedSchemaMajor)
	}
	return nil
}

// majorVersion extracts the major version from a semver string.
func majorVersion(v string) string {
	for i, ch := range v {
		if ch == '.' {
			return v[:i]
		}
	}
	return v
}

// --- Parameters ---

// Parameters returns the current calculation parameters.
func (c *Client) Parameters(ctx context.Context) (*calculation.Parameters, error) {
	res, err := c.call(ctx, "kalk_get_parameters", nil)
	if err != nil {
		return nil, err
	}
	return unmarshalText[calculation.Parameters](res)
}

// UpdateParameters applies the non-empty fields of u and returns the result.
func (c *Client) UpdateParameters(ctx context.Context, u ParametersUpdate) (*calculation.Parameters, error) {
	res, err := c.call(ctx, "kalk_update_parameters", u.args())
	if err != nil {
		return nil, err
	}
	return unmarshalText[calculation.Parameters](res)
}

// --- PreCalculation ---

// PreCalculation returns the stored plan of a project, or nil when none is stored.
func (c *Client) PreCalculation(ctx context.Context, projectID string) (*calculation.PreCalculation, error) {
	res, err := c.call(ctx, "kalk_get_precalc", map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	if !isJSON(res) {
		return nil, nil
	}
	return unmarshalText[calculation.PreCalculation](res)
}

// DerivePreCalculation plans a project from its overrides, offer or manual entries.
func (c *Client) DerivePreCalculation(ctx context.Context, projectID string) (*Derivation, error) {
	res, err := c.call(ctx, "kalk_derive_precalc", map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	return unmarshalText[Derivation](res)
}

// SaveManualPreCalculation stores planned hours per employee and activity.
func (c *Client) SaveManualPreCalculation(ctx context.Context, projectID string, entries []calculation.Allocation) (*Derivation, error) {
	args := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		args = append(args, map[string]any{
			"employee_id": e.EmployeeID,
			"activity":    string(e.Activity),
			"hours":       e.Hours.String(),
		})
	}
	res, err := c.call(ctx, "kalk_save_manual_precalc", map[string]any{"project_id": projectID, "entries": args})
	if err != nil {
		return nil, err
	}
	return unmarshalText[Derivation](res)
}

// --- PostCalculation ---

// PostCalculation returns the stored reconciliation of a project, or nil when
// the project has not been recomputed yet.
func (c *Client) PostCalculation(ctx context.Context, projectID string) (*calculation.PostCalculation, error) {
	res, err := c.call(ctx, "kalk_get_postcalc", map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	if !isJSON(res) {
		return nil, nil
	}
	return unmarshalText[calculation.PostCalculation](res)
}

// Recompute runs one recompute cycle for a project.
func (c *Client) Recompute(ctx context.Context, projectID string) (*RecomputeResult, error) {
	res, err := c.call(ctx, "kalk_recompute", map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	return unmarshalText[RecomputeResult](res)
}

// --- Classification ---

// ClassifyProject returns the traffic light of a project.
func (c *Client) ClassifyProject(ctx context.Context, projectID string) (*ProjectClassification, error) {
	res, err := c.call(ctx, "kalk_classify_project", map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	return unmarshalText[ProjectClassification](res)
}

// ClassifyEmployee returns the traffic light of one employee on a project.
func (c *Client) ClassifyEmployee(ctx context.Context, projectID, employeeID string) (*EmployeeClassification, error) {
	res, err := c.call(ctx, "kalk_classify_employee", map[string]any{"project_id": projectID, "employee_id": employeeID})
	if err != nil {
		return nil, err
	}
	return unmarshalText[EmployeeClassification](res)
}

// --- Hours ---

// Hours sums booked hours by status.
func (c *Client) Hours(ctx context.Context, req HoursRequest) (*calculation.HoursTotals, error) {
	res, err := c.call(ctx, "kalk_hours", req.args(false))
	if err != nil {
		return nil, err
	}
	return unmarshalText[calculation.HoursTotals](res)
}

// Breakdown sums booked hours per employee and activity.
func (c *Client) Breakdown(ctx context.Context, req HoursRequest) ([]calculation.EmployeeActivityHours, error) {
	res, err := c.call(ctx, "kalk_hours", req.args(true))
	if err != nil {
		return nil, err
	}
	rows, err := unmarshalText[[]calculation.EmployeeActivityHours](res)
	if err != nil {
		return nil, err
	}
	return *rows, nil
}
