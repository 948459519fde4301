// Package tui renders a terminal dashboard of the current presences and
// accepts control commands.
package tui

import (
	"context"
	"sync"

	"rpp/cmd"
	"rpp/plugin"
	"rpp/sink"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const sinkName = "tui"

func init() {
	sink.Register(New())
}

// Sink runs the bubbletea dashboard
type Sink struct {
	mu      sync.Mutex
	env     sink.Env
	program *tea.Program
	done    chan struct{}
	logger  *zap.Logger
}

// New creates a TUI sink
func New() *Sink {
	return &Sink{logger: zap.NewNop()}
}

// Name returns the sink name
func (s *Sink) Name() string {
	return sinkName
}

// CheckRequirements requires interactive mode
func (s *Sink) CheckRequirements(ctx context.Context) error {
	checker := plugin.NewRequirementChecker(sinkName)
	checker.AddRequired(
		"interactive_mode",
		"TUI requires interactive mode",
		plugin.RequireMode(plugin.ModeInteractive),
	)
	_, err := checker.Check(ctx)
	return err
}

// Start runs the program in the background. Quitting the dashboard
// stops the daemon.
func (s *Sink) Start(ctx context.Context, env sink.Env) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.env = env
	if env.Logger != nil {
		s.logger = env.Logger.With(zap.String("sink", sinkName))
	}

	cmdCtx := cmd.WithDaemon(plugin.WithMode(context.WithoutCancel(ctx), env.Mode()), env.Daemon)
	m := newModel(cmdCtx, cmd.NewRouter())
	s.program = tea.NewProgram(m, tea.WithAltScreen())
	s.done = make(chan struct{})

	if env.Broker != nil {
		ch := env.Broker.Subscribe(sinkName, env.BufferSize(), plugin.TopicActivity, plugin.TopicNotification)
		go s.forward(ch, s.program)
	}

	go func() {
		defer close(s.done)
		if _, err := s.program.Run(); err != nil {
			s.logger.Error("error running program", zap.Error(err))
		}
		if env.Daemon != nil {
			_ = env.Daemon.Stop(context.WithoutCancel(ctx))
		}
	}()

	return nil
}

// Stop quits the program and waits for it to restore the terminal
func (s *Sink) Stop(ctx context.Context) error {
	s.mu.Lock()
	program, done, broker := s.program, s.done, s.env.Broker
	s.mu.Unlock()

	if broker != nil {
		broker.Unsubscribe(sinkName)
	}
	if program == nil {
		return nil
	}

	program.Quit()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forward converts broker messages into program messages
func (s *Sink) forward(ch <-chan plugin.Message, program *tea.Program) {
	for msg := range ch {
		switch msg.Topic {
		case plugin.TopicActivity:
			if a, ok := msg.Payload.(plugin.Activity); ok {
				program.Send(activityMsg{presence: msg.Source, activity: a})
			}
		case plugin.TopicNotification:
			program.Send(logMsg{source: msg.Source, text: payloadText(msg.Payload)})
		}
	}
}
