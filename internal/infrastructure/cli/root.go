package cli

import (
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	projectPath string
	jsonOutput  bool
	actor       string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "kalk",
	Version: Version,
	Short:   "Project cost calculation for construction jobs",
	Long: `kalk derives planned labor hours from accepted offers, aggregates the
hours actually booked and classifies every project against the plan.

Derived records live in .kalk/ and are kept in step with their inputs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&projectPath, "dir", "C", "", "Workspace directory (defaults to the current directory)")
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	RootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Name recorded in the audit log (defaults to $USER)")
}
