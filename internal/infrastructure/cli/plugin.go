package cli

import (
	"fmt"

	"github.com/felixgeelhaar/kalk/pkg/plugin/contract"
	"github.com/spf13/cobra"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect the source plugin",
}

var pluginShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured source plugin",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return MapError(err)
		}
		defer ws.Close()

		out := cmd.OutOrStdout()
		p := ws.Config.SourcePlugin
		if jsonOutput {
			return printJSON(out, p)
		}
		if !p.Enabled() {
			fmt.Fprintln(out, "No source plugin configured; inputs are read from .kalk/sources.")
			return nil
		}
		fmt.Fprintf(out, "Binary: %s\n", p.Binary)
		for k, v := range p.Config {
			fmt.Fprintf(out, "  %s=%s\n", k, v)
		}
		return nil
	},
}

var pluginVerifyCmd = &cobra.Command{
	Use:   "verify [binary]",
	Short: "Run the contract suite against a source plugin",
	Long:  "Starts the plugin and checks that it resolves projects, scopes assignments and time entries and rejects bad config. Without an argument the configured plugin is verified.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var binary string
		if len(args) == 1 {
			binary = args[0]
		} else {
			ws, err := openWorkspace()
			if err != nil {
				return MapError(err)
			}
			_ = ws.Close()
			if !ws.Config.SourcePlugin.Enabled() {
				return NewCLIError("no source plugin configured", "Pass the plugin binary: 'kalk plugin verify <binary>'", nil)
			}
			binary = ws.Config.SourcePlugin.Binary
		}

		result, err := contract.NewContractSuite().RunBinary(binary)
		if err != nil {
			return NewCLIError("failed to start plugin", "Check that the binary exists and is executable", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, result); err != nil {
				return err
			}
		} else {
			for _, r := range result.Results {
				mark := statusGreen.Render("PASS")
				if !r.Passed {
					mark = statusRed.Render("FAIL")
				}
				fmt.Fprintf(out, "%s  %-20s %s\n", mark, r.Name, r.Message)
			}
			fmt.Fprintf(out, "\n%d passed, %d failed\n", result.Passed, result.Failed)
		}
		if !result.OK() {
			return &CLIError{Message: "plugin violates the source contract", ExitCode: 2}
		}
		return nil
	},
}

func init() {
	pluginCmd.AddCommand(pluginShowCmd)
	pluginCmd.AddCommand(pluginVerifyCmd)
	RootCmd.AddCommand(pluginCmd)
}
