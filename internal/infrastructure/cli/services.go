package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func loadServices(root string, opts wiring.Options) (*wiring.AppServices, error) {
	services, err := wiring.BuildAppServices(root, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build services: %w", err)
	}
	if !services.Workspace.IsInitialized() {
		_ = services.Close()
		return nil, ErrNotInitialized
	}
	return services, nil
}

func getProjectRoot() (string, error) {
	if projectPath != "" {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return "", fmt.Errorf("invalid project path %q: %w", projectPath, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("project path %q: %w", abs, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("project path %q is not a directory", abs)
		}
		return abs, nil
	}
	return os.Getwd()
}

func loadServicesForCurrentDir(cmd *cobra.Command) (*wiring.AppServices, error) {
	root, err := getProjectRoot()
	if err != nil {
		return nil, err
	}
	return loadServices(root, wiring.Options{LogOutput: cmd.ErrOrStderr()})
}

// flushDirty recomputes every invalidated project right away. A one-shot
// command exits before the debounce window would fire.
func flushDirty(ctx context.Context, services *wiring.AppServices) error {
	for _, id := range services.Orchestrator.Dirty() {
		if _, err := services.Orchestrator.Recompute(ctx, id, currentActor()); err != nil && !errors.Is(err, calculation.ErrRecomputeCoalesced) {
			return fmt.Errorf("recompute %s: %w", id, err)
		}
	}
	return nil
}

// currentActor is the name written to the audit log for user actions.
func currentActor() string {
	if actor != "" {
		return actor
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
