package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/sse"
	"github.com/felixgeelhaar/kalk/internal/infrastructure/watch"
	"github.com/felixgeelhaar/kalk/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/kalk/pkg/domain/events"
	"github.com/spf13/cobra"
)

// consoleNotifier prints deviation alerts as they happen.
type consoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func (n *consoleNotifier) Notify(_ context.Context, level events.NotificationLevel, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	marker := colorStatus("green")
	switch level {
	case events.NotificationLevelWarning:
		marker = colorStatus("yellow")
	case events.NotificationLevelError:
		marker = colorStatus("red")
	}
	_, err := fmt.Fprintf(n.out, "[%s] %s %s: %s\n", time.Now().Format("15:04:05"), marker, title, message)
	return err
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recompute projects whenever their inputs change",
	Long: `watch observes the workspace sources and parameters. A change marks the
affected projects dirty; each is recomputed once its inputs have been quiet
for the configured debounce window.

With --serve, events are also streamed as Server-Sent Events on /events,
e.g. curl -N 'localhost:8090/events?types=deviation.status_changed'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := getProjectRoot()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		services, err := loadServices(root, wiring.Options{
			LogOutput: cmd.ErrOrStderr(),
			Notifier:  &consoleNotifier{out: out},
		})
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if watchServe != "" {
			addr, err := serveEvents(ctx, watchServe, services)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Streaming events on http://%s/events\n", addr)
		}
		return runWatch(ctx, out, services)
	},
}

var watchServe string

// serveEvents streams dispatched events on addr until ctx is done and returns
// the bound address.
func serveEvents(ctx context.Context, addr string, services *wiring.AppServices) (string, error) {
	handler := sse.NewHandler()
	services.Dispatcher.Register(handler.Registration())

	mux := http.NewServeMux()
	mux.Handle("/events", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	go func() { _ = srv.Serve(ln) }()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return ln.Addr().String(), nil
}

func runWatch(ctx context.Context, out io.Writer, services *wiring.AppServices) error {
	cfg := services.Workspace.Config
	filter := watch.NewPatternFilter(cfg.Watch.Include, cfg.Watch.Exclude)
	w, err := watch.NewFSWatcher(cfg.Debounce/4, filter, func(batch []watch.ChangeEvent) {
		for _, change := range batch {
			services.Dispatcher.Publish(ctx, &events.FileChanged{
				BaseEvent:  events.NewBaseEvent(events.EventTypeFileChanged, events.AggregateTypeWorkspace, filepath.Base(change.Path), "watch", time.Now()),
				FilePath:   change.Path,
				ChangeType: change.ChangeType,
			})
		}
	})
	if err != nil {
		return err
	}
	if err := w.WatchRecursive(services.Workspace.Files.Dir()); err != nil {
		return err
	}

	if err := catchUp(ctx, services, filter); err != nil {
		return MapError(err)
	}

	fmt.Fprintf(out, "Watching %s (debounce %s). Press Ctrl+C to stop.\n", services.Workspace.Files.Dir(), cfg.Debounce)
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// catchUp invalidates the projects that were never reconciled or whose inputs
// changed after their last recompute. Plugin sources carry no modification
// time, so every project is invalidated.
func catchUp(ctx context.Context, services *wiring.AppServices, filter *watch.PatternFilter) error {
	if services.Workspace.Config.SourcePlugin.Enabled() {
		return services.Orchestrator.InvalidateAll(ctx, "watch started")
	}
	changed, err := newestInput(services.Workspace.Files.Dir(), filter)
	if err != nil {
		return err
	}
	projects, err := services.Calculation.Projects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		post, err := services.Calculation.GetPostCalculation(ctx, p.ID)
		if err != nil {
			return err
		}
		switch {
		case post == nil:
			services.Orchestrator.Invalidate(ctx, p.ID, "never recomputed")
		case post.LastComputedAt.Before(changed):
			services.Orchestrator.Invalidate(ctx, p.ID, "inputs changed while not watching")
		}
	}
	return nil
}

// newestInput returns the latest modification time of the watched files below dir.
func newestInput(dir string, filter *watch.PatternFilter) (time.Time, error) {
	var newest time.Time
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !filter.Matches(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("scan inputs: %w", err)
	}
	return newest, nil
}

func init() {
	watchCmd.Flags().StringVar(&watchServe, "serve", "", "Also stream events as SSE on this address, e.g. :8090")
	RootCmd.AddCommand(watchCmd)
}
