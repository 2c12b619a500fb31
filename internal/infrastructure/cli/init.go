package cli

import (
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/kalk/pkg/storage"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a kalk workspace in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := getProjectRoot()
		if err != nil {
			return err
		}
		ws, err := wiring.OpenWorkspace(root)
		if err != nil {
			return MapError(err)
		}
		defer ws.Close()

		if err := ws.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize workspace: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Initialized kalk workspace in %s\n", filepath.Join(root, storage.KalkDir))
		fmt.Fprintf(out, "Put projects, offers, assignments and time entries into %s\n",
			filepath.Join(storage.KalkDir, storage.SourcesDir))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(initCmd)
}
