package cli

import (
	"fmt"
	"io"

	"github.com/felixgeelhaar/kalk/pkg/application"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/spf13/cobra"
)

var postcalcCmd = &cobra.Command{
	Use:   "postcalc",
	Short: "Inspect and recompute actual hours",
}

var postcalcShowCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Show the reconciliation of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		pc, err := services.Calculation.GetPostCalculation(cmd.Context(), args[0])
		if err != nil {
			return MapError(err)
		}
		if pc == nil {
			return NewCLIError(fmt.Sprintf("no PostCalculation for %s", args[0]), "Run 'kalk postcalc recompute "+args[0]+"' first", nil)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), pc)
		}
		printPostCalculation(cmd.OutOrStdout(), pc)
		return nil
	},
}

var postcalcAll bool

var postcalcRecomputeCmd = &cobra.Command{
	Use:   "recompute [project]",
	Short: "Recompute a project now, or every project with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if postcalcAll == (len(args) == 1) {
			return NewCLIError("pass a project or --all", "e.g. 'kalk postcalc recompute p-100'", nil)
		}

		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		ids := args
		if postcalcAll {
			projects, err := services.Calculation.Projects(cmd.Context())
			if err != nil {
				return MapError(err)
			}
			ids = make([]string, 0, len(projects))
			for _, p := range projects {
				ids = append(ids, p.ID)
			}
		}

		results := make([]application.RecomputeResult, 0, len(ids))
		for _, id := range ids {
			res, err := services.Calculation.RecomputePostCalculation(cmd.Context(), id, currentActor())
			if err != nil {
				if postcalcAll {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					continue
				}
				return MapError(err)
			}
			results = append(results, res)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, results)
		}
		rows := make([][]string, 0, len(results))
		for _, res := range results {
			written := "unchanged"
			switch {
			case res.Missing != nil:
				written = "no plan"
			case !res.Unchanged():
				written = "updated"
			}
			rows = append(rows, []string{res.ProjectID,
				hours(res.Pre.TotalPlannedHours()), hours(res.Post.TotalActualHours()),
				colorStatus(string(res.Classification.Status)), percent(res.Classification.DeviationPercent), written})
		}
		return printTable(out, []string{"PROJECT", "PLANNED", "ACTUAL", "STATUS", "% OF PLAN", "WRITTEN"}, rows)
	},
}

func printPostCalculation(w io.Writer, pc *calculation.PostCalculation) {
	fmt.Fprintf(w, "Project:  %s\n", pc.ProjectID)
	fmt.Fprintf(w, "Rate:     %s\n", money(pc.HourlyRate))
	fmt.Fprintf(w, "Computed: %s\n\n", pc.LastComputedAt.Format("2006-01-02 15:04"))

	rows := make([][]string, 0, len(pc.PerEmployee)+1)
	for _, er := range pc.PerEmployee {
		name := er.EmployeeID
		if er.EmployeeName != "" {
			name = er.EmployeeName + " (" + er.EmployeeID + ")"
		}
		rows = append(rows, []string{name,
			hours(er.PlannedHoursSetup), hours(er.ActualHoursSetup),
			hours(er.PlannedHoursTeardown), hours(er.ActualHoursTeardown),
			hours(er.HourDelta), money(er.RevenueDelta), colorStatus(string(er.Status))})
	}
	rows = append(rows, []string{"total", "", hours(pc.ActualHoursSetup), "", hours(pc.ActualHoursTeardown), "", "", ""})
	_ = printTable(w, []string{"EMPLOYEE", "PLAN SETUP", "ACT SETUP", "PLAN TEARDOWN", "ACT TEARDOWN", "DELTA H", "DELTA REV", "STATUS"}, rows)
}

func init() {
	postcalcRecomputeCmd.Flags().BoolVar(&postcalcAll, "all", false, "Recompute every project")

	postcalcCmd.AddCommand(postcalcShowCmd)
	postcalcCmd.AddCommand(postcalcRecomputeCmd)
	RootCmd.AddCommand(postcalcCmd)
}
