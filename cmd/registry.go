package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"rpp/plugin"
)

var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnavailable    = errors.New("command not available")
	ErrNoDaemon       = errors.New("daemon context not available")
)

var globalRegistry = NewCommandRegistry()

// CommandRegistry holds the control commands sinks can dispatch
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]*Command)}
}

// Register adds cmd to the global registry. Called from init().
func Register(cmd *Command) {
	globalRegistry.Register(cmd)
}

// GetRegistry returns the global command registry
func GetRegistry() *CommandRegistry {
	return globalRegistry
}

// Register adds a command; registering a name twice panics
func (cr *CommandRegistry) Register(cmd *Command) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if _, exists := cr.commands[cmd.Name]; exists {
		panic(fmt.Sprintf("command %s already registered", cmd.Name))
	}
	cr.commands[cmd.Name] = cmd
}

// Get retrieves a command by name
func (cr *CommandRegistry) Get(name string) (*Command, bool) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	cmd, exists := cr.commands[name]
	return cmd, exists
}

// ListCommands returns visible commands for mode, sorted by name
func (cr *CommandRegistry) ListCommands(mode plugin.Mode) []*Command {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	var available []*Command
	for _, cmd := range cr.commands {
		if !cmd.Hidden && cmd.SupportsMode(mode) {
			available = append(available, cmd)
		}
	}
	sort.Slice(available, func(i, j int) bool {
		return available[i].Name < available[j].Name
	})
	return available
}

// Execute runs the named command. The mode carried by ctx, if any, must be
// one the command supports.
func (cr *CommandRegistry) Execute(ctx context.Context, name string, args []string) (*CommandResult, error) {
	cmd, exists := cr.Get(name)
	if !exists {
		return nil, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}
	if mode, ok := plugin.ModeFrom(ctx); ok && !cmd.SupportsMode(mode) {
		return nil, fmt.Errorf("%w: /%s in %s mode", ErrUnavailable, name, mode)
	}
	return cmd.Handler(ctx, args)
}

// Count returns the number of registered commands
func (cr *CommandRegistry) Count() int {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	return len(cr.commands)
}

func (c *Command) SupportsMode(mode plugin.Mode) bool {
	return len(c.Modes) == 0 || slices.Contains(c.Modes, mode)
}
