package wiring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/config"
	"github.com/felixgeelhaar/kalk/internal/infrastructure/watch"
	"github.com/felixgeelhaar/kalk/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/kalk/pkg/application"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/felixgeelhaar/kalk/pkg/domain/events"
	"github.com/felixgeelhaar/kalk/pkg/plugin"
	"github.com/felixgeelhaar/kalk/pkg/storage"
)

// AppServices exposes the application layer services wired together with a workspace.
type AppServices struct {
	Workspace    *Workspace
	Logger       *slog.Logger
	Dispatcher   *events.EventDispatcher
	Sources      calculation.Sources
	Parameters   *application.ParametersService
	Calculation  *application.CalculationService
	Orchestrator *application.RecomputeOrchestrator
	Audit        *application.AuditService
	// Import is nil when sources come from a plugin; plugin sources are read-only.
	Import    *application.ImportService
	Scheduler *watch.KeyedDebouncer
	// Webhooks is nil unless notify.webhooks is configured.
	Webhooks *webhook.Notifier

	loader *plugin.Loader
}

// Options tune BuildAppServices.
type Options struct {
	// LogOutput receives the text log. Defaults to stderr.
	LogOutput io.Writer
	// Notifier receives deviation alerts. Optional.
	Notifier events.Notifier
}

// NewLogger builds the text logger at the configured level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// BuildAppServices opens the workspace at root and wires every service.
// Call Close when done.
func BuildAppServices(root string, opts Options) (*AppServices, error) {
	ws, err := OpenWorkspace(root)
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(opts.LogOutput, ws.Config.LogLevel)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}

	s := &AppServices{
		Workspace: ws,
		Logger:    logger,
		Audit:     ws.Audit,
	}

	var sources calculation.Sources = ws.Local
	if ws.Config.SourcePlugin.Enabled() {
		s.loader = plugin.NewLoader()
		src, err := s.loader.Load(ws.Config.SourcePlugin.Binary)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("load source plugin: %w", err)
		}
		if err := src.Init(ws.Config.SourcePlugin.Config); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("init source plugin: %w", err)
		}
		sources = plugin.NewResilientSource(src, plugin.DefaultCallTimeout)
		logger.Debug("source plugin loaded", "binary", ws.Config.SourcePlugin.Binary)
	}
	s.Sources = sources

	s.Dispatcher = events.NewEventDispatcher(logger)
	s.Scheduler = watch.NewKeyedDebouncer(ws.Config.Debounce)

	s.Orchestrator = application.NewRecomputeOrchestrator(ws.Repo, ws.Repo, sources, logger)
	s.Orchestrator.SetDispatcher(s.Dispatcher)
	s.Orchestrator.SetScheduler(s.Scheduler)

	s.Parameters = application.NewParametersService(ws.Repo)
	s.Parameters.SetDispatcher(s.Dispatcher)

	s.Calculation = application.NewCalculationService(ws.Repo, ws.Repo, sources, s.Orchestrator)
	s.Calculation.SetDispatcher(s.Dispatcher)

	if !ws.Config.SourcePlugin.Enabled() {
		s.Import = application.NewImportService(ws.Local, s.Orchestrator, ws.Audit)
	}

	s.Dispatcher.Register(events.NewLoggingHandler(logger).Registration())
	s.Dispatcher.Register(events.NewAuditTrailHandler(ws.Audit, logger).Registration())
	var notifiers notifierList
	if opts.Notifier != nil {
		notifiers = append(notifiers, opts.Notifier)
	}
	if len(ws.Config.Notify.Webhooks) > 0 {
		dlPath, err := ws.Files.ResolvePath(storage.DeadLetterFile)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Webhooks = webhook.NewNotifier(ws.Config.Notify.Webhooks, webhook.NewDeadLetterStore(dlPath))
		notifiers = append(notifiers, s.Webhooks)
	}
	var notifier events.Notifier
	if len(notifiers) > 0 {
		notifier = notifiers
	}
	s.Dispatcher.Register(events.NewDeviationAlertHandler(notifier, logger).Registration())
	s.Dispatcher.Register(s.Orchestrator.Registration())
	if !ws.Config.SourcePlugin.Enabled() {
		s.Dispatcher.Register(events.NewInputChangeHandler(s.Orchestrator, ws.Local.ProjectsForFile, logger).Registration())
	}

	return s, nil
}

// notifierList fans a notification out to several notifiers.
type notifierList []events.Notifier

func (l notifierList) Notify(ctx context.Context, level events.NotificationLevel, title, message string) error {
	var errs []error
	for _, n := range l {
		if err := n.Notify(ctx, level, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops pending recomputes, waits for webhook deliveries, kills plugin
// processes and closes the store.
func (s *AppServices) Close() error {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.Webhooks != nil {
		s.Webhooks.Wait()
	}
	if s.loader != nil {
		s.loader.Cleanup()
	}
	return s.Workspace.Close()
}
