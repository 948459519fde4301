package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultUpdateInterval is applied to presences that declare no interval
const DefaultUpdateInterval = 15 * time.Second

// LoadResult is the outcome of a discovery pass. It is immutable once
// returned.
type LoadResult struct {
	// Presences holds the enabled presences in discovery order
	Presences []Presence

	// RequiresRuntime is true if any instantiated presence uses the runtime.
	// Disabled presences count too, so the runtime may be polled even when
	// no entry in Presences uses it.
	RequiresRuntime bool

	// Errors holds one *DiscoveryError per skipped manifest
	Errors []error
}

// Loader discovers presence manifests below a root directory and
// instantiates the presences they name.
type Loader struct {
	registry        *Registry
	entryPoint      string
	devMode         bool
	defaultInterval time.Duration
	logger          *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRegistry sets the factory registry; the global one is used otherwise.
func WithRegistry(r *Registry) LoaderOption {
	return func(l *Loader) {
		l.registry = r
	}
}

// WithEntryPoint sets the manifest file name.
func WithEntryPoint(name string) LoaderOption {
	return func(l *Loader) {
		if name != "" {
			l.entryPoint = name
		}
	}
}

// WithDevMode propagates developer mode to every presence.
func WithDevMode(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.devMode = enabled
	}
}

// WithDefaultInterval sets the interval for presences that declare none.
func WithDefaultInterval(interval time.Duration) LoaderOption {
	return func(l *Loader) {
		if interval > 0 {
			l.defaultInterval = interval
		}
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a new presence loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		registry:        GetRegistry(),
		entryPoint:      DefaultEntryPoint,
		defaultInterval: DefaultUpdateInterval,
		logger:          zap.NewNop(),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.logger = l.logger.With(zap.String("component", "loader"))
	return l
}

// Load walks root and resolves every manifest found. A manifest that fails
// to resolve is logged, recorded in LoadResult.Errors and skipped; Load
// itself never fails.
func (l *Loader) Load(ctx context.Context, root string) LoadResult {
	var result LoadResult
	seen := make(map[string]bool)

	fail := func(path string, err error) {
		derr := &DiscoveryError{Path: path, Err: err}
		l.logger.Error("failed to load presence module", zap.String("path", path), zap.Error(err))
		result.Errors = append(result.Errors, derr)
	}

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			l.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		name := entry.Name()
		if entry.IsDir() {
			if path != root && strings.HasPrefix(name, ReservedPrefix) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ReservedPrefix) || name != l.entryPoint {
			return nil
		}

		key := canonicalPath(path)
		if seen[key] {
			l.logger.Debug("manifest already loaded", zap.String("path", path))
			return nil
		}
		seen[key] = true

		l.logger.Info("loading presence module", zap.String("dir", filepath.Dir(path)))
		presences, usesRuntime, err := l.resolve(ctx, path)
		if err != nil {
			fail(path, err)
			return nil
		}

		if usesRuntime {
			result.RequiresRuntime = true
		}
		for _, p := range presences {
			if !p.Enabled() {
				l.logger.Info("presence disabled, skipping", zap.String("presence", p.Name()))
				continue
			}
			l.logger.Info("presence loaded",
				zap.String("presence", p.Name()),
				zap.Duration("interval", p.UpdateInterval()),
				zap.Bool("runtime", p.UsesRuntime()),
			)
			result.Presences = append(result.Presences, p)
		}
		return nil
	})

	if walkErr != nil {
		fail(root, walkErr)
	}

	return result
}

// resolve instantiates every presence named by the manifest at path. The
// manifest is all or nothing: one failing candidate skips all of them.
func (l *Loader) resolve(ctx context.Context, path string) (out []Presence, usesRuntime bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, usesRuntime = nil, false
			err = fmt.Errorf("%w: %v", ErrFactoryPanic, r)
		}
	}()

	manifest, err := LoadManifest(path)
	if err != nil {
		return nil, false, err
	}

	dir := filepath.Dir(path)
	names := make(map[string]bool, len(manifest.Presences))

	for _, name := range manifest.Presences {
		if names[name] {
			continue
		}
		names[name] = true

		factory, ok := l.registry.Lookup(name)
		if !ok {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownPresence, name)
		}

		p := factory()
		if p == nil {
			return nil, false, fmt.Errorf("factory %s returned nil", name)
		}

		p.SetPath(dir)
		p.SetDevMode(l.devMode)
		p.SetDefaultInterval(l.defaultInterval)

		if p.UpdateInterval() <= 0 {
			return nil, false, fmt.Errorf("presence %s: update interval must be positive", p.Name())
		}

		if c, ok := p.(Configurable); ok && manifest.Settings != nil {
			if err := c.Configure(manifest.Settings); err != nil {
				return nil, false, fmt.Errorf("configure %s: %w", p.Name(), err)
			}
		}

		if r, ok := p.(Requirer); ok {
			if checker := r.Requirements(); checker != nil {
				if _, err := checker.WithLogger(l.logger).Check(ctx); err != nil {
					return nil, false, fmt.Errorf("presence %s: %w", p.Name(), err)
				}
			}
		}

		if p.UsesRuntime() {
			usesRuntime = true
		}
		out = append(out, p)
	}

	return out, usesRuntime, nil
}

// canonicalPath resolves symlinks so a manifest reachable through several
// paths is only loaded once.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}

// IsDiscoveryError reports whether err is a *DiscoveryError
func IsDiscoveryError(err error) bool {
	var derr *DiscoveryError
	return errors.As(err, &derr)
}
