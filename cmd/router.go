package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"rpp/plugin"
)

const commandPrefix = "/"

// Router parses control input and dispatches it to a registry
type Router struct {
	registry *CommandRegistry
}

// NewRouter creates a router over the global command registry
func NewRouter() *Router {
	return NewRouterWithRegistry(GetRegistry())
}

// NewRouterWithRegistry creates a router over registry
func NewRouterWithRegistry(registry *CommandRegistry) *Router {
	return &Router{registry: registry}
}

// Route executes input. Both "/status" and "status" name the same command.
func (r *Router) Route(ctx context.Context, input string) (*CommandResult, error) {
	name, args := parseCommand(input)
	if name == "" {
		return nil, ErrEmptyCommand
	}
	return r.registry.Execute(ctx, name, args)
}

func parseCommand(input string) (string, []string) {
	tokens := strings.Fields(strings.TrimPrefix(strings.TrimSpace(input), commandPrefix))
	if len(tokens) == 0 {
		return "", nil
	}
	return strings.ToLower(tokens[0]), tokens[1:]
}

// IsCommand reports whether input starts with the command prefix
func (r *Router) IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), commandPrefix)
}

// GetHelp lists the commands visible in mode
func (r *Router) GetHelp(mode plugin.Mode) string {
	commands := r.registry.ListCommands(mode)
	if len(commands) == 0 {
		return "No commands available."
	}

	var sb strings.Builder
	sb.WriteString("Available commands:\n\n")
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	for _, cmd := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", cmd.Signature(), cmd.Description)
	}
	_ = tw.Flush()
	return sb.String()
}

// GetCommandHelp describes a single command
func (r *Router) GetCommandHelp(name string) (string, error) {
	name = strings.ToLower(strings.TrimPrefix(name, commandPrefix))
	cmd, exists := r.registry.Get(name)
	if !exists {
		return "", fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Command: /%s\n", cmd.Name)
	if cmd.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", cmd.Description)
	}
	fmt.Fprintf(&sb, "\nUsage: %s\n", cmd.Signature())
	if len(cmd.Modes) > 0 {
		fmt.Fprintf(&sb, "Modes: %v\n", cmd.Modes)
	}
	return sb.String(), nil
}
