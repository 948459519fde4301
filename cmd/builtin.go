package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rpp/plugin"
)

func init() {
	RegisterBuiltins(globalRegistry)
}

// RegisterBuiltins adds help, status, presences and presence to registry
func RegisterBuiltins(registry *CommandRegistry) {
	registry.Register(&Command{
		Name:        "help",
		Description: "Show available commands or help for one command",
		Usage:       "[command]",
		Handler:     helpHandler(registry),
	})

	registry.Register(&Command{
		Name:        "status",
		Description: "Show daemon status and presence counters",
		Handler:     handleStatus,
	})

	registry.Register(&Command{
		Name:        "presences",
		Description: "List the presences being scheduled",
		Handler:     handlePresences,
	})

	registry.Register(&Command{
		Name:        "presence",
		Description: "Show counters and the last error of one presence",
		Usage:       "<name>",
		Handler:     handlePresence,
	})
}

func helpHandler(registry *CommandRegistry) CommandHandler {
	return func(ctx context.Context, args []string) (*CommandResult, error) {
		router := NewRouterWithRegistry(registry)

		if len(args) > 0 {
			helpText, err := router.GetCommandHelp(args[0])
			if err != nil {
				return nil, err
			}
			return &CommandResult{Output: helpText}, nil
		}

		mode, ok := plugin.ModeFrom(ctx)
		if !ok {
			mode = plugin.ModeDaemon
		}
		return &CommandResult{Output: router.GetHelp(mode)}, nil
	}
}

func handleStatus(ctx context.Context, args []string) (*CommandResult, error) {
	d, ok := daemonFrom(ctx).(StatusProvider)
	if !ok {
		return &CommandResult{Output: "Status: running (" + ErrNoDaemon.Error() + ")"}, nil
	}
	return &CommandResult{Output: d.GetStatus(ctx)}, nil
}

func handlePresences(ctx context.Context, args []string) (*CommandResult, error) {
	lister, ok := daemonFrom(ctx).(PresenceLister)
	if !ok {
		return nil, fmt.Errorf("list presences: %w", ErrNoDaemon)
	}

	presences := lister.Presences()
	if len(presences) == 0 {
		return &CommandResult{Output: "No presences loaded"}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Presences (%d):\n\n", len(presences))

	names := make([]string, 0, len(presences))
	for i, p := range presences {
		fmt.Fprintf(&sb, "%d. %s (every %s", i+1, p.Name(), p.UpdateInterval())
		if p.UsesRuntime() {
			sb.WriteString(", runtime")
		}
		sb.WriteString(")\n")
		if p.Path() != "" {
			fmt.Fprintf(&sb, "   %s\n", p.Path())
		}
		names = append(names, p.Name())
	}

	return &CommandResult{Output: sb.String(), Data: names}, nil
}

func handlePresence(ctx context.Context, args []string) (*CommandResult, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: /presence <name>")
	}
	reporter, ok := daemonFrom(ctx).(StatusReporter)
	if !ok {
		return nil, fmt.Errorf("presence %s: %w", args[0], ErrNoDaemon)
	}

	for _, p := range reporter.Status().Presences {
		if p.Name != args[0] {
			continue
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s\n", p.Name)
		fmt.Fprintf(&sb, "  interval: %s\n", p.Interval)
		fmt.Fprintf(&sb, "  runtime:  %t\n", p.UsesRuntime)
		fmt.Fprintf(&sb, "  updates:  %d (%d failed)\n", p.Updates, p.Failures)
		if !p.LastUpdate.IsZero() {
			fmt.Fprintf(&sb, "  last:     %s\n", p.LastUpdate.Format(time.RFC3339))
		}
		if p.LastError != "" {
			fmt.Fprintf(&sb, "  error:    %s\n", p.LastError)
		}
		if p.Closed {
			sb.WriteString("  closed\n")
		}
		return &CommandResult{Output: sb.String(), Data: p}, nil
	}
	return nil, fmt.Errorf("presence %q not loaded", args[0])
}
