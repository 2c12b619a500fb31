package cli

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/export"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/spf13/cobra"
)

var exportProjects []string

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Write planned against actual hours of all projects to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()
		ctx := cmd.Context()

		projects, err := services.Calculation.Projects(ctx)
		if err != nil {
			return MapError(err)
		}
		if len(exportProjects) > 0 {
			projects, err = selectProjects(projects, exportProjects)
			if err != nil {
				return MapError(err)
			}
		}

		params, err := services.Parameters.Get(ctx)
		if err != nil {
			return err
		}

		rows := make([]export.Project, 0, len(projects))
		for _, p := range projects {
			overall, err := services.Calculation.ClassifyProject(ctx, p.ID)
			if err != nil {
				return MapError(fmt.Errorf("classify %s: %w", p.ID, err))
			}
			row := export.Project{Project: p, Overall: overall}

			post, err := services.Calculation.GetPostCalculation(ctx, p.ID)
			if err != nil {
				return MapError(err)
			}
			if post == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s has no actual hours yet; run 'kalk postcalc recompute %s'\n", p.ID, p.ID)
			} else {
				for _, er := range post.PerEmployee {
					c, err := services.Calculation.ClassifyEmployee(ctx, p.ID, er.EmployeeID)
					if err != nil {
						return MapError(err)
					}
					row.Employees = append(row.Employees, c)
				}
			}
			rows = append(rows, row)
		}

		data, err := export.Workbook(rows, params.RoundingRule)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0600); err != nil {
			return fmt.Errorf("write %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d projects to %s\n", len(rows), args[0])
		return nil
	},
}

func selectProjects(all []calculation.Project, ids []string) ([]calculation.Project, error) {
	byID := make(map[string]calculation.Project, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}
	out := make([]calculation.Project, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, calculation.ErrProjectNotFound)
		}
		out = append(out, p)
	}
	return out, nil
}

func init() {
	exportCmd.Flags().StringSliceVarP(&exportProjects, "project", "p", nil, "Only export these projects")
	RootCmd.AddCommand(exportCmd)
}
