package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/kalk/pkg/application"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var precalcCmd = &cobra.Command{
	Use:   "precalc",
	Short: "Inspect and maintain planned hours",
}

var precalcShowCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Show the stored PreCalculation of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		pc, err := services.Calculation.GetPreCalculation(cmd.Context(), args[0])
		if err != nil {
			return MapError(err)
		}
		if pc == nil {
			return NewCLIError(fmt.Sprintf("no PreCalculation for %s", args[0]), "Run 'kalk precalc derive "+args[0]+"' first", nil)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), pc)
		}
		params, err := services.Parameters.Get(cmd.Context())
		if err != nil {
			return MapError(err)
		}
		printPreCalculation(cmd.OutOrStdout(), pc, params.RoundingRule)
		return nil
	},
}

var precalcDeriveCmd = &cobra.Command{
	Use:   "derive <project>",
	Short: "Derive planned hours from overrides, the offer or manual entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		d, err := services.Calculation.DerivePreCalculation(cmd.Context(), args[0], currentActor())
		if err != nil {
			return MapError(err)
		}
		if err := flushDirty(cmd.Context(), services); err != nil {
			return MapError(err)
		}
		return reportDerivation(cmd, services.Parameters, d)
	},
}

var precalcEntries []string

var precalcSetCmd = &cobra.Command{
	Use:   "set <project>",
	Short: "Store manual planned hours per employee and activity",
	Example: `  kalk precalc set p-100 --entry e1:setup:14 --entry e1:teardown:6`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		allocs, err := parseAllocations(precalcEntries)
		if err != nil {
			return err
		}

		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		d, err := services.Calculation.SaveManualPreCalculation(cmd.Context(), args[0], allocs, currentActor())
		if err != nil {
			return MapError(err)
		}
		if err := flushDirty(cmd.Context(), services); err != nil {
			return MapError(err)
		}
		return reportDerivation(cmd, services.Parameters, d)
	},
}

func reportDerivation(cmd *cobra.Command, params *application.ParametersService, d calculation.Derivation) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, d.PreCalculation)
	}
	if d.Missing != nil {
		fmt.Fprintf(out, "Nothing to plan from: %v\n", d.Missing)
		return nil
	}
	p, err := params.Get(cmd.Context())
	if err != nil {
		return MapError(err)
	}
	printPreCalculation(out, &d.PreCalculation, p.RoundingRule)
	return nil
}

// parseAllocations reads EMPLOYEE:ACTIVITY:HOURS triples.
func parseAllocations(entries []string) ([]calculation.Allocation, error) {
	if len(entries) == 0 {
		return nil, NewCLIError("no entries given", "Pass --entry EMPLOYEE:ACTIVITY:HOURS at least once", nil)
	}
	allocs := make([]calculation.Allocation, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, NewCLIError(fmt.Sprintf("invalid entry %q", entry), "Use EMPLOYEE:ACTIVITY:HOURS, e.g. e1:setup:14", nil)
		}
		h, err := decimal.NewFromString(parts[2])
		if err != nil {
			return nil, NewCLIError(fmt.Sprintf("invalid hours in %q", entry), "Hours must be a decimal number", err)
		}
		allocs = append(allocs, calculation.Allocation{
			EmployeeID: strings.TrimSpace(parts[0]),
			Activity:   calculation.ActivityType(strings.TrimSpace(parts[1])),
			Hours:      h,
		})
	}
	return allocs, nil
}

func printPreCalculation(w io.Writer, pc *calculation.PreCalculation, rule calculation.RoundingRule) {
	fmt.Fprintf(w, "Project:   %s\n", pc.ProjectID)
	source := string(pc.Source)
	if pc.SourceOfferID != "" {
		source += " (" + pc.SourceOfferID + ")"
	}
	fmt.Fprintf(w, "Source:    %s\n", source)
	fmt.Fprintf(w, "Rate:      %s\n", money(pc.HourlyRate))
	fmt.Fprintf(w, "Derived:   %s\n\n", pc.DerivedAt.Format("2006-01-02 15:04"))

	_ = printTable(w, []string{"ACTIVITY", "HOURS", "DISPLAY", "REVENUE"}, [][]string{
		{"setup", hours(pc.PlannedHoursSetup), strconv.FormatInt(calculation.DisplayHours(pc.PlannedHoursSetup, rule), 10), money(pc.PlannedRevenueSetup())},
		{"teardown", hours(pc.PlannedHoursTeardown), strconv.FormatInt(calculation.DisplayHours(pc.PlannedHoursTeardown, rule), 10), money(pc.PlannedRevenueTeardown())},
		{"total", hours(pc.TotalPlannedHours()), "", money(pc.TotalPlannedRevenue())},
	})

	if len(pc.Allocations) > 0 {
		fmt.Fprintln(w)
		rows := make([][]string, 0, len(pc.Allocations))
		for _, a := range pc.Allocations {
			rows = append(rows, []string{a.EmployeeID, string(a.Activity), hours(a.Hours)})
		}
		_ = printTable(w, []string{"EMPLOYEE", "ACTIVITY", "HOURS"}, rows)
	}
}

func init() {
	precalcSetCmd.Flags().StringArrayVar(&precalcEntries, "entry", nil, "Planned hours as EMPLOYEE:ACTIVITY:HOURS (repeatable)")

	precalcCmd.AddCommand(precalcShowCmd)
	precalcCmd.AddCommand(precalcDeriveCmd)
	precalcCmd.AddCommand(precalcSetCmd)
	RootCmd.AddCommand(precalcCmd)
}
