// Package mcp exposes the calculation engine as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/kalk/pkg/application"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/felixgeelhaar/mcp-go"
	"github.com/shopspring/decimal"
)

type Server struct {
	mcpServer *mcp.Server
	services  *wiring.AppServices
	paramsSvc *application.ParametersService
	calcSvc   *application.CalculationService
	actor     string
}

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

// mcpErr returns a user-friendly error for MCP clients.
// Internal details are omitted; only the friendly message is returned.
func mcpErr(friendly string) error {
	return fmt.Errorf("%s", friendly)
}

// NewServer wires the services of the workspace at root. Logs go to stderr so
// they never mix with the stdio transport.
func NewServer(root string) (*Server, error) {
	services, err := wiring.BuildAppServices(root, wiring.Options{LogOutput: os.Stderr})
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}
	return newServer(services), nil
}

func newServer(services *wiring.AppServices) *Server {
	info := mcp.ServerInfo{
		Name:    "kalk",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("Kalk MCP Server"),
			mcp.WithDescription("Kalk exposes planned and actual labor hours of construction projects and their deviation status."),
			mcp.WithWebsiteURL("https://github.com/felixgeelhaar/kalk"),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use tools to read and edit calculation parameters, derive planned hours, recompute actual hours and classify projects."),
		),
		services:  services,
		paramsSvc: services.Parameters,
		calcSvc:   services.Calculation,
		actor:     "mcp",
	}

	s.registerTools()
	s.registerSchemaResource()
	return s
}

// Close stops pending recomputes and releases the workspace.
func (s *Server) Close() error {
	return s.services.Close()
}

type ProjectArgs struct {
	ProjectID string `json:"project_id" jsonschema:"required,description=The project ID"`
}

type UpdateParametersArgs struct {
	HourlyRate   string `json:"hourly_rate,omitempty" jsonschema:"description=Hourly rate as a decimal (e.g. 72.50)"`
	Distribution string `json:"distribution,omitempty" jsonschema:"description=Setup/teardown split in percent (e.g. 70/30)"`
	RoundingRule string `json:"rounding_rule,omitempty" jsonschema:"description=Rounding rule: commercial | up | down"`
	Green        string `json:"green,omitempty" jsonschema:"description=Green threshold range in percent (e.g. 95-105)"`
	Yellow       string `json:"yellow,omitempty" jsonschema:"description=Yellow threshold range in percent (e.g. 90-110)"`
}

type AllocationArg struct {
	EmployeeID string `json:"employee_id" jsonschema:"required,description=The employee ID"`
	Activity   string `json:"activity" jsonschema:"required,description=setup or teardown"`
	Hours      string `json:"hours" jsonschema:"required,description=Planned hours as a decimal"`
}

type ManualPreCalcArgs struct {
	ProjectID string          `json:"project_id" jsonschema:"required,description=The project ID"`
	Entries   []AllocationArg `json:"entries" jsonschema:"required,description=Planned hours per employee and activity"`
}

type ClassifyEmployeeArgs struct {
	ProjectID  string `json:"project_id" jsonschema:"required,description=The project ID"`
	EmployeeID string `json:"employee_id" jsonschema:"required,description=The employee ID"`
}

type HoursArgs struct {
	ProjectID  string `json:"project_id" jsonschema:"required,description=The project ID"`
	EmployeeID string `json:"employee_id,omitempty" jsonschema:"description=Only this employee"`
	Activity   string `json:"activity,omitempty" jsonschema:"description=Only this activity: setup or teardown"`
	From       string `json:"from,omitempty" jsonschema:"description=First day as YYYY-MM-DD"`
	To         string `json:"to,omitempty" jsonschema:"description=Last day as YYYY-MM-DD"`
	Breakdown  bool   `json:"breakdown,omitempty" jsonschema:"description=Group totals by employee and activity"`
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("kalk_get_parameters").
		Description("Retrieve the calculation parameters (hourly rate, distribution, rounding, thresholds)").
		Handler(s.handleGetParameters)

	s.mcpServer.Tool("kalk_update_parameters").
		Description("Update one or more calculation parameters; omitted fields are unchanged").
		Handler(s.handleUpdateParameters)

	s.mcpServer.Tool("kalk_get_precalc").
		Description("Retrieve the stored planned hours of a project").
		Handler(s.handleGetPreCalc)

	s.mcpServer.Tool("kalk_derive_precalc").
		Description("Derive planned hours from assignment overrides, the offer or manual entries").
		Handler(s.handleDerivePreCalc)

	s.mcpServer.Tool("kalk_save_manual_precalc").
		Description("Store manually entered planned hours per employee and activity").
		Handler(s.handleSaveManualPreCalc)

	s.mcpServer.Tool("kalk_get_postcalc").
		Description("Retrieve the stored actual hours and per-employee reconciliation of a project").
		Handler(s.handleGetPostCalc)

	s.mcpServer.Tool("kalk_recompute").
		Description("Recompute planned and actual hours of a project now").
		Handler(s.handleRecompute)

	s.mcpServer.Tool("kalk_classify_project").
		Description("Classify a project green, yellow or red by actual against planned hours").
		Handler(s.handleClassifyProject)

	s.mcpServer.Tool("kalk_classify_employee").
		Description("Classify one crew member of a project against their own planned hours").
		Handler(s.handleClassifyEmployee)

	s.mcpServer.Tool("kalk_hours").
		Description("Aggregate booked hours of a project by status, optionally filtered and broken down").
		Handler(s.handleHours)
}

func (s *Server) handleGetParameters(ctx context.Context, args struct{}) (any, error) {
	p, err := s.paramsSvc.Get(ctx)
	if err != nil {
		return nil, mcpErr("Failed to load parameters.")
	}
	return p, nil
}

func (s *Server) handleUpdateParameters(ctx context.Context, args UpdateParametersArgs) (any, error) {
	patch, err := parametersPatch(args)
	if err != nil {
		return nil, userErr(err)
	}
	if patch.IsEmpty() {
		return nil, mcpErr("Nothing to change. Pass at least one field.")
	}
	p, err := s.paramsSvc.Update(ctx, patch, s.actor)
	if err != nil {
		return nil, userErr(err)
	}
	return p, nil
}

func parametersPatch(args UpdateParametersArgs) (calculation.ParametersPatch, error) {
	var patch calculation.ParametersPatch
	if args.HourlyRate != "" {
		rate, err := decimal.NewFromString(args.HourlyRate)
		if err != nil {
			return patch, &calculation.ValidationError{Field: "hourly_rate", Reason: "not a decimal: " + args.HourlyRate}
		}
		patch.HourlyRate = &rate
	}
	if args.Distribution != "" {
		d, err := calculation.ParseDistribution(args.Distribution)
		if err != nil {
			return patch, err
		}
		patch.Distribution = &d
	}
	if args.RoundingRule != "" {
		rule := calculation.RoundingRule(args.RoundingRule)
		patch.RoundingRule = &rule
	}
	if args.Green != "" {
		r, err := calculation.ParseRange(args.Green)
		if err != nil {
			return patch, err
		}
		patch.Green = &r
	}
	if args.Yellow != "" {
		r, err := calculation.ParseRange(args.Yellow)
		if err != nil {
			return patch, err
		}
		patch.Yellow = &r
	}
	return patch, nil
}

func (s *Server) handleGetPreCalc(ctx context.Context, args ProjectArgs) (any, error) {
	if args.ProjectID == "" {
		return nil, mcpErr("project_id is required")
	}
	pc, err := s.calcSvc.GetPreCalculation(ctx, args.ProjectID)
	if err != nil {
		return nil, userErr(err)
	}
	if pc == nil {
		return fmt.Sprintf("No planned hours stored for %s. Use kalk_derive_precalc first.", args.ProjectID), nil
	}
	return pc, nil
}

func (s *Server) handleDerivePreCalc(ctx context.Context, args ProjectArgs) (any, error) {
	if args.ProjectID == "" {
		return nil, mcpErr("project_id is required")
	}
	d, err := s.calcSvc.DerivePreCalculation(ctx, args.ProjectID, s.actor)
	if err != nil {
		return nil, userErr(err)
	}
	return derivationResponse(d), nil
}

func (s *Server) handleSaveManualPreCalc(ctx context.Context, args ManualPreCalcArgs) (any, error) {
	if args.ProjectID == "" {
		return nil, mcpErr("project_id is required")
	}
	if len(args.Entries) == 0 {
		return nil, mcpErr("entries must not be empty")
	}
	allocs := make([]calculation.Allocation, 0, len(args.Entries))
	for i, e := range args.Entries {
		h, err := decimal.NewFromString(e.Hours)
		if err != nil {
			return nil, mcpErr(fmt.Sprintf("entries[%d].hours is not a decimal", i))
		}
		allocs = append(allocs, calculation.Allocation{
			EmployeeID: e.EmployeeID,
			Activity:   calculation.ActivityType(e.Activity),
			Hours:      h,
		})
	}
	d, err := s.calcSvc.SaveManualPreCalculation(ctx, args.ProjectID, allocs, s.actor)
	if err != nil {
		return nil, userErr(err)
	}
	return derivationResponse(d), nil
}

type derivationResp struct {
	PreCalculation calculation.PreCalculation `json:"pre_calculation"`
	Notice         string                     `json:"notice,omitempty"`
}

func derivationResponse(d calculation.Derivation) derivationResp {
	resp := derivationResp{PreCalculation: d.PreCalculation}
	if d.Missing != nil {
		resp.Notice = d.Missing.Error()
	}
	return resp
}

func (s *Server) handleGetPostCalc(ctx context.Context, args ProjectArgs) (any, error) {
	if args.ProjectID == "" {
		return nil, mcpErr("project_id is required")
	}
	pc, err := s.calcSvc.GetPostCalculation(ctx, args.ProjectID)
	if err != nil {
		return nil, userErr(err)
	}
	if pc == nil {
		return fmt.Sprintf("No actual hours stored for %s. Use kalk_recompute first.", args.ProjectID), nil
	}
	return pc, nil
}

type recomputeResp struct {
	ProjectID        string                      `json:"project_id"`
	Pre              calculation.PreCalculation  `json:"pre_calculation"`
	Post             calculation.PostCalculation `json:"post_calculation"`
	Status           calculation.Status          `json:"status"`
	DeviationPercent decimal.Decimal             `json:"deviation_percent"`
	Written          bool                        `json:"written"`
	Notice           string                      `json:"notice,omitempty"`
}

func (s *Server) handleRecompute(ctx context.Context, args ProjectArgs) (any, error) {
	if args.ProjectID == "" {
		return nil, mcpErr("project_id is required")
	}
	res, err := s.calcSvc.RecomputePostCalculation(ctx, args.ProjectID, s.actor)
	if err != nil {
		return nil, userErr(err)
	}
	resp := recomputeResp{
		ProjectID:        res.ProjectID,
		Pre:              res.Pre,
		Post:             res.Post,
		Status:           res.Classification.Status,
		DeviationPercent: res.Classification.DeviationPercent,
		Written:          !res.Unchanged(),
	}
	if res.Missing != nil {
		resp.Notice = res.Missing.Error()
	}
	return resp, nil
}

func (s *Server) handleClassifyProject(ctx context.Context, args ProjectArgs) (any, error) {
	if args.ProjectID == "" {
		return nil, mcpErr("project_id is required")
	}
	c, err := s.calcSvc.ClassifyProject(ctx, args.ProjectID)
	if err != nil {
		return nil, userErr(err)
	}
	return c, nil
}

func (s *Server) handleClassifyEmployee(ctx context.Context, args ClassifyEmployeeArgs) (any, error) {
	if args.ProjectID == "" || args.EmployeeID == "" {
		return nil, mcpErr("project_id and employee_id are required")
	}
	c, err := s.calcSvc.ClassifyEmployee(ctx, args.ProjectID, args.EmployeeID)
	if err != nil {
		return nil, userErr(err)
	}
	return c, nil
}

func (s *Server) handleHours(ctx context.Context, args HoursArgs) (any, error) {
	if args.ProjectID == "" {
		return nil, mcpErr("project_id is required")
	}
	q := calculation.HoursQuery{
		ProjectID:  args.ProjectID,
		EmployeeID: args.EmployeeID,
		Activity:   calculation.ActivityType(args.Activity),
	}
	if !q.Activity.IsValid() {
		return nil, mcpErr("activity must be setup or teardown")
	}
	var err error
	if q.Range.From, err = parseDay(args.From); err != nil {
		return nil, mcpErr("from must be YYYY-MM-DD")
	}
	if q.Range.To, err = parseDay(args.To); err != nil {
		return nil, mcpErr("to must be YYYY-MM-DD")
	}

	if args.Breakdown {
		rows, err := s.calcSvc.Breakdown(ctx, q)
		if err != nil {
			return nil, mcpErr("Failed to load time entries.")
		}
		if rows == nil {
			rows = []calculation.EmployeeActivityHours{}
		}
		return rows, nil
	}
	totals, err := s.calcSvc.Hours(ctx, q)
	if err != nil {
		return nil, mcpErr("Failed to load time entries.")
	}
	return totals, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// userErr keeps messages of errors the caller can act on and hides the rest.
func userErr(err error) error {
	var valErr *calculation.ValidationError
	switch {
	case errors.As(err, &valErr):
		return mcpErr(valErr.Error())
	case errors.Is(err, calculation.ErrProjectNotFound):
		return mcpErr("Project not found.")
	case errors.Is(err, calculation.ErrEmployeeNotFound):
		return mcpErr("Employee is not assigned to this project.")
	case errors.Is(err, calculation.ErrRecomputeCoalesced):
		return mcpErr("A recompute is already running; the request was queued.")
	case errors.Is(err, calculation.ErrInvariantViolated):
		return mcpErr("Stored totals are inconsistent. Run kalk_recompute.")
	}
	return mcpErr("Internal error. Check the server log.")
}

func (s *Server) Start() error {
	return s.StartStdio()
}

func (s *Server) StartStdio() error {
	return s.ServeStdio(context.Background())
}

func (s *Server) StartHTTP(addr string) error {
	return s.ServeHTTP(context.Background(), addr)
}

func (s *Server) StartWebSocket(addr string) error {
	return s.ServeWebSocket(context.Background(), addr)
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}

func (s *Server) ServeWebSocket(ctx context.Context, addr string) error {
	return mcp.ServeWebSocket(ctx, s.mcpServer, addr)
}
