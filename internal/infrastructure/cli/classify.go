package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var classifyEmployee string

var classifyCmd = &cobra.Command{
	Use:   "classify <project>",
	Short: "Show the traffic light of a project or one of its employees",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		out := cmd.OutOrStdout()
		if classifyEmployee != "" {
			c, err := services.Calculation.ClassifyEmployee(cmd.Context(), args[0], classifyEmployee)
			if err != nil {
				return MapError(err)
			}
			if jsonOutput {
				return printJSON(out, c)
			}
			name := c.EmployeeID
			if c.EmployeeName != "" {
				name = c.EmployeeName
			}
			fmt.Fprintf(out, "%s on %s: %s (%s of plan)\n", name, c.ProjectID, colorStatus(string(c.Status)), percent(c.DeviationPercent))
			fmt.Fprintf(out, "  hours:   %s / %s, %s\n", hours(c.Hours.Actual), hours(c.Hours.Planned), c.Hours.Summary("h"))
			fmt.Fprintf(out, "  revenue: %s / %s, %s\n", money(c.Revenue.Actual), money(c.Revenue.Planned), c.Revenue.Summary("EUR"))
			return nil
		}

		c, err := services.Calculation.ClassifyProject(cmd.Context(), args[0])
		if err != nil {
			return MapError(err)
		}
		if jsonOutput {
			return printJSON(out, c)
		}
		fmt.Fprintf(out, "%s: %s (%s of plan)\n", c.ProjectID, colorStatus(string(c.Status)), percent(c.DeviationPercent))
		fmt.Fprintf(out, "  hours:   %s / %s, %s\n", hours(c.Hours.Actual), hours(c.Hours.Planned), c.Hours.Summary("h"))
		fmt.Fprintf(out, "  revenue: %s / %s, %s\n", money(c.Revenue.Actual), money(c.Revenue.Planned), c.Revenue.Summary("EUR"))
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyEmployee, "employee", "e", "", "Classify a single employee")
	RootCmd.AddCommand(classifyCmd)
}
