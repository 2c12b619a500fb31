package cli

import (
	"fmt"

	mcpserver "github.com/felixgeelhaar/kalk/internal/infrastructure/mcp"
	"github.com/spf13/cobra"
)

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Print an OpenAPI 3.0 document of the MCP tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := getProjectRoot()
		if err != nil {
			return err
		}
		srv, err := mcpserver.NewServer(root)
		if err != nil {
			return MapError(fmt.Errorf("failed to initialize server: %w", err))
		}
		defer srv.Close()

		data, err := srv.OpenAPI()
		if err != nil {
			return fmt.Errorf("failed to generate OpenAPI document: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(openapiCmd)
}
