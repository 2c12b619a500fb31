package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/config"
	"github.com/felixgeelhaar/kalk/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/kalk/pkg/domain/events"
	"github.com/felixgeelhaar/kalk/pkg/storage"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Manage webhooks that receive deviation alerts",
}

var notifyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured webhook endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return MapError(err)
		}
		defer ws.Close()

		out := cmd.OutOrStdout()
		hooks := ws.Config.Notify.Webhooks
		if jsonOutput {
			if hooks == nil {
				hooks = []webhook.Endpoint{}
			}
			return printJSON(out, hooks)
		}
		if len(hooks) == 0 {
			fmt.Fprintln(out, "No webhooks configured.")
			return nil
		}
		for _, ep := range hooks {
			levels := "all levels"
			if len(ep.Levels) > 0 {
				levels = strings.Join(ep.Levels, ",")
			}
			fmt.Fprintf(out, "  %s -> %s [%s]\n", ep.Name, ep.URL, levels)
		}
		return nil
	},
}

var notifyAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a webhook endpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, url := args[0], args[1]
		secret, _ := cmd.Flags().GetString("secret")
		levels, _ := cmd.Flags().GetStringSlice("level")
		for _, l := range levels {
			switch events.NotificationLevel(l) {
			case events.NotificationLevelInfo, events.NotificationLevelWarning, events.NotificationLevelError:
			default:
				return NewCLIError(fmt.Sprintf("unknown level %q", l), "Use info, warning or error", nil)
			}
		}

		ws, err := openWorkspace()
		if err != nil {
			return MapError(err)
		}
		defer ws.Close()

		cfg := ws.Config
		for _, ep := range cfg.Notify.Webhooks {
			if ep.Name == name {
				return NewCLIError(fmt.Sprintf("webhook %q already exists", name), "Remove it first with 'kalk notify remove'", nil)
			}
		}
		cfg.Notify.Webhooks = append(cfg.Notify.Webhooks, webhook.Endpoint{
			Name:       name,
			URL:        url,
			Secret:     secret,
			Levels:     levels,
			MaxRetries: 3,
			RetryDelay: time.Second,
		})
		if err := config.Save(ws.Root, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added webhook %q -> %s\n", name, url)
		return nil
	},
}

var notifyRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a webhook endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return MapError(err)
		}
		defer ws.Close()

		cfg := ws.Config
		var remaining []webhook.Endpoint
		for _, ep := range cfg.Notify.Webhooks {
			if ep.Name != args[0] {
				remaining = append(remaining, ep)
			}
		}
		if len(remaining) == len(cfg.Notify.Webhooks) {
			return NewCLIError(fmt.Sprintf("webhook %q not found", args[0]), "Run 'kalk notify list'", nil)
		}
		cfg.Notify.Webhooks = remaining
		if err := config.Save(ws.Root, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed webhook %q\n", args[0])
		return nil
	},
}

var notifyTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Send a test alert to one endpoint and wait for delivery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return MapError(err)
		}
		defer ws.Close()

		var target *webhook.Endpoint
		for i, ep := range ws.Config.Notify.Webhooks {
			if ep.Name == args[0] {
				target = &ws.Config.Notify.Webhooks[i]
				break
			}
		}
		if target == nil {
			return NewCLIError(fmt.Sprintf("webhook %q not found", args[0]), "Run 'kalk notify list'", nil)
		}

		dl, err := deadLetters(ws.Files)
		if err != nil {
			return err
		}
		before, _ := dl.ReadAll()

		ep := *target
		ep.Levels = nil
		n := webhook.NewNotifier([]webhook.Endpoint{ep}, dl)
		if err := n.Notify(context.Background(), events.NotificationLevelInfo, "Test alert", "kalk webhook test from "+currentActor()); err != nil {
			return err
		}
		n.Wait()

		after, _ := dl.ReadAll()
		if len(after) > len(before) {
			last := after[len(after)-1]
			return NewCLIError(fmt.Sprintf("delivery to %q failed after %d attempts", args[0], last.Attempts), "Run 'kalk notify deadletters' for details", nil)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Test alert delivered to %q\n", args[0])
		return nil
	},
}

var notifyDeadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "List alerts that could not be delivered",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return MapError(err)
		}
		defer ws.Close()

		dl, err := deadLetters(ws.Files)
		if err != nil {
			return err
		}
		letters, err := dl.ReadAll()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if letters == nil {
				letters = []webhook.DeadLetter{}
			}
			return printJSON(out, letters)
		}
		if len(letters) == 0 {
			fmt.Fprintln(out, "No failed deliveries.")
			return nil
		}
		rows := make([][]string, 0, len(letters))
		for _, l := range letters {
			rows = append(rows, []string{
				l.Timestamp.Local().Format("2006-01-02 15:04:05"), l.Endpoint, l.Level, strconv.Itoa(l.Attempts), l.Error,
			})
		}
		return printTable(out, []string{"TIME", "ENDPOINT", "LEVEL", "ATTEMPTS", "ERROR"}, rows)
	},
}

func deadLetters(files *storage.FilesystemRepository) (*webhook.DeadLetterStore, error) {
	path, err := files.ResolvePath(storage.DeadLetterFile)
	if err != nil {
		return nil, err
	}
	return webhook.NewDeadLetterStore(path), nil
}

func init() {
	notifyAddCmd.Flags().String("secret", "", "HMAC-SHA256 signing secret")
	notifyAddCmd.Flags().StringSlice("level", nil, "Only send these levels (info, warning, error)")
	notifyCmd.AddCommand(notifyListCmd)
	notifyCmd.AddCommand(notifyAddCmd)
	notifyCmd.AddCommand(notifyRemoveCmd)
	notifyCmd.AddCommand(notifyTestCmd)
	notifyCmd.AddCommand(notifyDeadLettersCmd)
	RootCmd.AddCommand(notifyCmd)
}
