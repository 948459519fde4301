package plugin

import (
	"errors"
	"fmt"
)

// Discovery errors.
var (
	// ErrUnknownPresence is returned when a manifest names a presence that
	// is not compiled into the binary.
	ErrUnknownPresence = errors.New("unknown presence")

	// ErrEmptyManifest is returned when a manifest lists no presences.
	ErrEmptyManifest = errors.New("manifest lists no presences")

	// ErrFactoryPanic is returned when a presence factory panics.
	ErrFactoryPanic = errors.New("presence factory panicked")
)

// DiscoveryError reports a manifest that could not be resolved. The
// manifest is skipped; discovery continues with the next one.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
