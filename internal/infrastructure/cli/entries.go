package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Import and review time entries in the local workspace",
}

var entriesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import time entries from a JSON or YAML list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0]) // #nosec G304 -- CLI reads a user-supplied import file
		if err != nil {
			return NewCLIError("cannot read import file", "Check the path and permissions", err)
		}
		if ext := strings.ToLower(filepath.Ext(args[0])); ext == ".yaml" || ext == ".yml" {
			if data, err = yamlToJSON(data); err != nil {
				return NewCLIError("invalid YAML", "The file must contain a list of time entries", err)
			}
		}

		services, err := importServices(cmd)
		if err != nil {
			return err
		}
		defer services.Close()

		res, err := services.Import.Import(cmd.Context(), data, currentActor())
		if err != nil {
			return MapError(err)
		}
		if err := flushDirty(cmd.Context(), services); err != nil {
			return MapError(err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries for %s.\n", res.Imported, strings.Join(res.Projects, ", "))
		return nil
	},
}

var entriesApproveCmd = &cobra.Command{
	Use:   "approve <entry>",
	Short: "Approve a time entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeEntry(cmd, args[0], "approved", func(s *wiring.AppServices) (calculation.TimeEntry, error) {
			return s.Import.Approve(cmd.Context(), args[0], currentActor())
		})
	},
}

var entriesRejectCmd = &cobra.Command{
	Use:   "reject <entry>",
	Short: "Reject a time entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeEntry(cmd, args[0], "rejected", func(s *wiring.AppServices) (calculation.TimeEntry, error) {
			return s.Import.Reject(cmd.Context(), args[0], currentActor())
		})
	},
}

var entriesDeleteCmd = &cobra.Command{
	Use:   "delete <entry>",
	Short: "Delete a time entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeEntry(cmd, args[0], "deleted", func(s *wiring.AppServices) (calculation.TimeEntry, error) {
			return s.Import.Delete(cmd.Context(), args[0], currentActor())
		})
	},
}

func importServices(cmd *cobra.Command) (*wiring.AppServices, error) {
	services, err := loadServicesForCurrentDir(cmd)
	if err != nil {
		return nil, MapError(err)
	}
	if services.Import == nil {
		_ = services.Close()
		return nil, NewCLIError("time entries are read-only", "Entries come from the source plugin; change them in the ERP", nil)
	}
	return services, nil
}

func changeEntry(cmd *cobra.Command, entryID, verb string, fn func(*wiring.AppServices) (calculation.TimeEntry, error)) error {
	services, err := importServices(cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	te, err := fn(services)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return NewCLIError(fmt.Sprintf("time entry %s not found", entryID), "Run 'kalk hours <project> --breakdown' to review entries", err)
		}
		return MapError(err)
	}
	if err := flushDirty(cmd.Context(), services); err != nil {
		return MapError(err)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), te)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Entry %s %s (%s, %s h on %s).\n", te.ID, verb, te.EmployeeID, hours(te.Hours), te.ProjectID)
	return nil
}

// yamlToJSON converts a YAML list of entries to the JSON import format. YAML
// decodes bare dates as timestamps, so they are written back as YYYY-MM-DD.
func yamlToJSON(data []byte) ([]byte, error) {
	var v []map[string]interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	for _, entry := range v {
		for k, val := range entry {
			if ts, ok := val.(time.Time); ok {
				entry[k] = ts.Format("2006-01-02")
			}
		}
	}
	return json.Marshal(v)
}

func init() {
	entriesCmd.AddCommand(entriesImportCmd)
	entriesCmd.AddCommand(entriesApproveCmd)
	entriesCmd.AddCommand(entriesRejectCmd)
	entriesCmd.AddCommand(entriesDeleteCmd)
	RootCmd.AddCommand(entriesCmd)
}
