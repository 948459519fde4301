package plugin

import (
	"context"
	"time"
)

// Mode represents the execution mode of the daemon
type Mode string

const (
	// ModeDaemon runs headless; activity is exposed through network sinks
	ModeDaemon Mode = "daemon"
	// ModeInteractive additionally renders a terminal dashboard
	ModeInteractive Mode = "interactive"
)

// Presence is the contract every presence implementation satisfies.
//
// A presence is created once by the Loader, receives OnLoad exactly once
// before its first OnUpdate, and OnClose exactly once during shutdown.
// Hooks of a single presence are never invoked concurrently.
type Presence interface {
	// Name identifies the presence in logs and status output
	Name() string

	// Enabled reports whether the presence should be scheduled at all
	Enabled() bool

	// UsesRuntime reports whether the presence reads the shared Runtime
	UsesRuntime() bool

	// UpdateInterval is the period between two OnUpdate calls
	UpdateInterval() time.Duration

	// Path is the directory the presence was loaded from
	Path() string
	SetPath(path string)

	DevMode() bool
	SetDevMode(enabled bool)

	// SetDefaultInterval provides the interval used when the presence
	// declares none
	SetDefaultInterval(interval time.Duration)

	// OnLoad prepares the presence; out is where activity is published
	OnLoad(ctx context.Context, out Publisher) error

	// OnUpdate runs once per UpdateInterval with the shared runtime, which
	// may be nil when no runtime is configured
	OnUpdate(ctx context.Context, rt Runtime) error

	// OnClose releases everything acquired by the presence
	OnClose(ctx context.Context) error
}

// Refresher is implemented by presences that also want the coarse global
// tick driven by the daemon coordinator.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Configurable is implemented by presences that accept manifest settings.
type Configurable interface {
	Configure(settings map[string]interface{}) error
}

// Requirer is implemented by presences that must validate their
// environment before being registered.
type Requirer interface {
	Requirements() *RequirementChecker
}

// Runtime is the shared external data source some presences depend on.
// Only the daemon's runtime poller calls Update.
type Runtime interface {
	// Connected reports whether the runtime is able to serve data
	Connected() bool

	// Update refreshes the runtime's view of the environment
	Update(ctx context.Context) error
}

// Publisher is the write side of the message broker handed to presences
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// MessageBroker defines the interface for pub/sub communication
// This is defined here to avoid circular dependencies
type MessageBroker interface {
	Publisher

	// Subscribe creates a subscription for the given topics
	// Returns a channel that will receive matching messages
	Subscribe(id string, bufSize int, topics ...string) <-chan Message

	// Unsubscribe removes a subscription and closes its channel
	Unsubscribe(id string)
}

// Topics used on the broker
const (
	TopicActivity     = "activity"
	TopicNotification = "notification"
)

// Message represents a message in the pub/sub system
type Message struct {
	// Topic is the message category/channel
	Topic string

	// Payload contains the message data
	Payload interface{}

	// Source is the name of the originating presence or component
	Source string

	// Metadata contains additional message information
	Metadata map[string]interface{}
}

// Activity is what a presence reports to the display surfaces
type Activity struct {
	Details    string    `json:"details,omitempty"`
	State      string    `json:"state,omitempty"`
	LargeImage string    `json:"large_image,omitempty"`
	SmallImage string    `json:"small_image,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}

// IsZero reports whether the activity carries nothing to display
func (a Activity) IsZero() bool {
	return a.Details == "" && a.State == "" && a.LargeImage == "" && a.SmallImage == "" && a.StartedAt.IsZero()
}
