package cli

import (
	"fmt"
	"io"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show and edit the calculation parameters",
}

var paramsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		p, err := services.Parameters.Get(cmd.Context())
		if err != nil {
			return MapError(err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), p)
		}
		printParameters(cmd.OutOrStdout(), p)
		return nil
	},
}

var (
	paramsRate     string
	paramsSetup    int
	paramsTeardown int
	paramsRounding string
	paramsGreen    string
	paramsYellow   string
)

var paramsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update one or more parameters",
	Example: `  kalk params set --rate 75
  kalk params set --setup 60 --teardown 40
  kalk params set --green 97-103 --yellow 92-108`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := paramsPatchFromFlags(cmd)
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			return NewCLIError("nothing to change", "Pass at least one of --rate, --setup/--teardown, --rounding, --green, --yellow", nil)
		}

		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		p, err := services.Parameters.Update(cmd.Context(), patch, currentActor())
		if err != nil {
			return MapError(err)
		}
		if err := flushDirty(cmd.Context(), services); err != nil {
			return MapError(err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), p)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Parameters updated.")
		printParameters(cmd.OutOrStdout(), p)
		return nil
	},
}

var paramsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir(cmd)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		p, err := services.Parameters.Reset(cmd.Context(), currentActor())
		if err != nil {
			return MapError(err)
		}
		if err := flushDirty(cmd.Context(), services); err != nil {
			return MapError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Parameters reset to defaults.")
		printParameters(cmd.OutOrStdout(), p)
		return nil
	},
}

func paramsPatchFromFlags(cmd *cobra.Command) (calculation.ParametersPatch, error) {
	var patch calculation.ParametersPatch
	flags := cmd.Flags()

	if flags.Changed("rate") {
		rate, err := decimal.NewFromString(paramsRate)
		if err != nil {
			return patch, NewCLIError("invalid --rate", "Use a decimal number such as 72 or 72.50", err)
		}
		patch.HourlyRate = &rate
	}
	if flags.Changed("setup") || flags.Changed("teardown") {
		d := calculation.Distribution{Setup: paramsSetup, Teardown: paramsTeardown}
		switch {
		case !flags.Changed("teardown"):
			d.Teardown = 100 - paramsSetup
		case !flags.Changed("setup"):
			d.Setup = 100 - paramsTeardown
		}
		patch.Distribution = &d
	}
	if flags.Changed("rounding") {
		rule := calculation.RoundingRule(paramsRounding)
		patch.RoundingRule = &rule
	}
	if flags.Changed("green") {
		r, err := calculation.ParseRange(paramsGreen)
		if err != nil {
			return patch, NewCLIError("invalid --green", "Use MIN-MAX, e.g. 95-105", err)
		}
		patch.Green = &r
	}
	if flags.Changed("yellow") {
		r, err := calculation.ParseRange(paramsYellow)
		if err != nil {
			return patch, NewCLIError("invalid --yellow", "Use MIN-MAX, e.g. 90-110", err)
		}
		patch.Yellow = &r
	}
	return patch, nil
}

func printParameters(w io.Writer, p calculation.Parameters) {
	fmt.Fprintf(w, "Hourly rate:   %s\n", p.HourlyRate.StringFixed(2))
	fmt.Fprintf(w, "Distribution:  setup %d%% / teardown %d%%\n", p.Distribution.Setup, p.Distribution.Teardown)
	fmt.Fprintf(w, "Rounding:      %s\n", p.RoundingRule)
	fmt.Fprintf(w, "Green:         %s-%s%%\n", p.Thresholds.Green.Min, p.Thresholds.Green.Max)
	fmt.Fprintf(w, "Yellow:        %s-%s%%\n", p.Thresholds.Yellow.Min, p.Thresholds.Yellow.Max)
	if !p.LastModified.IsZero() {
		fmt.Fprintf(w, "Last modified: %s\n", p.LastModified.Format("2006-01-02 15:04"))
	}
}

func init() {
	paramsSetCmd.Flags().StringVar(&paramsRate, "rate", "", "Hourly rate")
	paramsSetCmd.Flags().IntVar(&paramsSetup, "setup", 0, "Setup share in percent")
	paramsSetCmd.Flags().IntVar(&paramsTeardown, "teardown", 0, "Teardown share in percent")
	paramsSetCmd.Flags().StringVar(&paramsRounding, "rounding", "", "Rounding rule (commercial, up, down)")
	paramsSetCmd.Flags().StringVar(&paramsGreen, "green", "", "Green threshold range, e.g. 95-105")
	paramsSetCmd.Flags().StringVar(&paramsYellow, "yellow", "", "Yellow threshold range, e.g. 90-110")

	paramsCmd.AddCommand(paramsShowCmd)
	paramsCmd.AddCommand(paramsSetCmd)
	paramsCmd.AddCommand(paramsResetCmd)
	RootCmd.AddCommand(paramsCmd)
}
