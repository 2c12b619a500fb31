package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/spf13/cobra"
)

var (
	hoursEmployee  string
	hoursActivity  string
	hoursFrom      string
	hoursTo        string
	hoursBreakdown bool
)

var hoursCmd = &cobra.Command{
	Use:   "hours <project>",
	Short: "Aggregate booked hours by status",
	Example: `  kalk hours p-100
  kalk hours p-100 --employee e1 --activity teardown
  kalk hours p-100 --from 2026-03-01 --to 2026-03-31 --breakdown`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := hoursQueryFromFlags(args[0])
		if err != nil {
			return err
		}

		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		out := cmd.OutOrStdout()
		if hoursBreakdown {
			rows, err := services.Calculation.Breakdown(cmd.Context(), q)
			if err != nil {
				return MapError(err)
			}
			if jsonOutput {
				return printJSON(out, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No time entries match.")
				return nil
			}
			cells := make([][]string, 0, len(rows))
			for _, r := range rows {
				cells = append(cells, []string{r.EmployeeID, string(r.Activity),
					hours(r.ApprovedHours), hours(r.PendingHours), hours(r.RejectedHours), strconv.Itoa(r.EntryCount)})
			}
			return printTable(out, []string{"EMPLOYEE", "ACTIVITY", "APPROVED", "PENDING", "REJECTED", "ENTRIES"}, cells)
		}

		totals, err := services.Calculation.Hours(cmd.Context(), q)
		if err != nil {
			return MapError(err)
		}
		if jsonOutput {
			return printJSON(out, totals)
		}
		fmt.Fprintf(out, "Approved: %s\n", hours(totals.ApprovedHours))
		fmt.Fprintf(out, "Pending:  %s\n", hours(totals.PendingHours))
		fmt.Fprintf(out, "Rejected: %s\n", hours(totals.RejectedHours))
		fmt.Fprintf(out, "Total:    %s (%d entries)\n", hours(totals.TotalHours), totals.EntryCount)
		if !q.Range.From.IsZero() {
			fmt.Fprintf(out, "Days:     %d\n", q.Range.ElapsedDays(time.Now()))
		}
		return nil
	},
}

func hoursQueryFromFlags(projectID string) (calculation.HoursQuery, error) {
	q := calculation.HoursQuery{ProjectID: projectID, EmployeeID: hoursEmployee}
	if hoursActivity != "" {
		activity := calculation.ActivityType(hoursActivity)
		if !activity.IsValid() {
			return q, NewCLIError(fmt.Sprintf("unknown activity %q", hoursActivity), "Use setup or teardown", nil)
		}
		q.Activity = activity
	}
	var err error
	if q.Range.From, err = parseDateFlag("from", hoursFrom); err != nil {
		return q, err
	}
	if q.Range.To, err = parseDateFlag("to", hoursTo); err != nil {
		return q, err
	}
	return q, nil
}

func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, NewCLIError("invalid --"+name, "Use YYYY-MM-DD", err)
	}
	return t, nil
}

func init() {
	hoursCmd.Flags().StringVarP(&hoursEmployee, "employee", "e", "", "Only this employee")
	hoursCmd.Flags().StringVarP(&hoursActivity, "activity", "a", "", "Only this activity (setup, teardown)")
	hoursCmd.Flags().StringVar(&hoursFrom, "from", "", "First day, YYYY-MM-DD")
	hoursCmd.Flags().StringVar(&hoursTo, "to", "", "Last day, YYYY-MM-DD")
	hoursCmd.Flags().BoolVar(&hoursBreakdown, "breakdown", false, "Group by employee and activity")
	RootCmd.AddCommand(hoursCmd)
}
