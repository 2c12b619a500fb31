package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects with their deviation status",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		projects, err := services.Calculation.Projects(cmd.Context())
		if err != nil {
			return MapError(err)
		}

		type row struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			OfferID string `json:"offer_id,omitempty"`
			Status  string `json:"status"`
			Percent string `json:"deviation_percent"`
		}
		rows := make([]row, 0, len(projects))
		for _, p := range projects {
			r := row{ID: p.ID, Name: p.Name, OfferID: p.OfferID, Status: "-", Percent: "-"}
			if c, err := services.Calculation.ClassifyProject(cmd.Context(), p.ID); err == nil {
				r.Status = string(c.Status)
				r.Percent = c.DeviationPercent.StringFixed(1)
			}
			rows = append(rows, r)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "No projects found.")
			return nil
		}
		cells := make([][]string, 0, len(rows))
		for _, r := range rows {
			offer := r.OfferID
			if offer == "" {
				offer = "-"
			}
			cells = append(cells, []string{r.ID, r.Name, offer, colorStatus(r.Status), r.Percent})
		}
		return printTable(out, []string{"ID", "NAME", "OFFER", "STATUS", "% OF PLAN"}, cells)
	},
}

func init() {
	RootCmd.AddCommand(projectsCmd)
}
