package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/kalk/pkg/domain"
	"github.com/spf13/cobra"
)

var auditProject string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show and verify the history of calculation changes",
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List audit events, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return MapError(err)
		}
		defer ws.Close()

		var evts []domain.Event
		if auditProject != "" {
			evts, err = ws.Audit.History(auditProject)
		} else {
			evts, err = ws.Audit.GetTimeline()
		}
		if err != nil {
			return fmt.Errorf("load audit log: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if evts == nil {
				evts = []domain.Event{}
			}
			return printJSON(out, evts)
		}
		if len(evts) == 0 {
			fmt.Fprintln(out, "No audit events recorded.")
			return nil
		}
		rows := make([][]string, 0, len(evts))
		for _, e := range evts {
			project := e.ProjectID
			if project == "" {
				project = "-"
			}
			rows = append(rows, []string{
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Actor, project, formatMetadata(e.Metadata),
			})
		}
		return printTable(out, []string{"TIME", "ACTION", "ACTOR", "PROJECT", "DETAILS"}, rows)
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain of the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return MapError(err)
		}
		defer ws.Close()

		out := cmd.OutOrStdout()
		violations, err := ws.Audit.VerifyIntegrity()
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		if len(violations) == 0 {
			fmt.Fprintln(out, "Audit trail is intact and verified.")
			return nil
		}

		fmt.Fprintf(out, "Found %d integrity violations:\n", len(violations))
		for _, v := range violations {
			fmt.Fprintf(out, "  - %s\n", v)
		}
		return &CLIError{
			Message:  "audit trail is broken",
			Hint:     "Restore the audit log from a backup",
			ExitCode: 2,
		}
	},
}

func openWorkspace() (*wiring.Workspace, error) {
	root, err := getProjectRoot()
	if err != nil {
		return nil, err
	}
	ws, err := wiring.OpenWorkspace(root)
	if err != nil {
		return nil, err
	}
	if !ws.IsInitialized() {
		_ = ws.Close()
		return nil, ErrNotInitialized
	}
	return ws, nil
}

func formatMetadata(m map[string]interface{}) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func init() {
	auditShowCmd.Flags().StringVarP(&auditProject, "project", "p", "", "Only events of this project")
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	RootCmd.AddCommand(auditCmd)
}
