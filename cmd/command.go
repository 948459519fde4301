package cmd

import (
	"context"

	"rpp/daemon"
	"rpp/plugin"
)

// Command represents a control command sinks can execute
type Command struct {
	// Name is the command identifier (e.g., "status", "presences")
	Name string

	// Description is a short description of what the command does
	Description string

	// Usage shows how to use the command
	Usage string

	// Handler is the function that executes the command
	Handler CommandHandler

	// Modes lists the modes in which this command is available
	Modes []plugin.Mode

	// Hidden indicates if the command should be hidden from help
	Hidden bool
}

// CommandHandler processes a command and returns a result
type CommandHandler func(ctx context.Context, args []string) (*CommandResult, error)

// CommandResult contains the result of command execution
type CommandResult struct {
	// Output is the text output to display
	Output string

	// Data contains structured data (for API responses)
	Data interface{}

	// Broadcast indicates if this result should be sent to all channels
	Broadcast bool
}

// StatusProvider interface for getting daemon status
type StatusProvider interface {
	GetStatus(ctx context.Context) string
}

// PresenceLister lists the scheduled presences
type PresenceLister interface {
	Presences() []plugin.Presence
}

// StatusReporter exposes the structured daemon status
type StatusReporter interface {
	Status() daemon.Status
}

type daemonKey struct{}

// WithDaemon stores the running daemon in ctx for command handlers. d
// should implement StatusProvider and PresenceLister.
func WithDaemon(ctx context.Context, d interface{}) context.Context {
	return context.WithValue(ctx, daemonKey{}, d)
}

func daemonFrom(ctx context.Context) interface{} {
	return ctx.Value(daemonKey{})
}

// Signature renders the command name with its usage, e.g. "/help [command]"
func (c *Command) Signature() string {
	if c.Usage == "" {
		return commandPrefix + c.Name
	}
	return commandPrefix + c.Name + " " + c.Usage
}
