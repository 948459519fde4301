package plugin

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stretchr/testify/require"
)

// stubPresence is a minimal presence used by the loader tests
type stubPresence struct {
	Base
	settings map[string]interface{}
}

func (s *stubPresence) Configure(settings map[string]interface{}) error {
	s.settings = settings
	return nil
}

type stubOption func(*stubPresence)

func withRuntime() stubOption {
	return func(s *stubPresence) { s.SetUsesRuntime(true) }
}

func disabled() stubOption {
	return func(s *stubPresence) { s.SetEnabled(false) }
}

func withInterval(d time.Duration) stubOption {
	return func(s *stubPresence) { s.interval = d }
}

func stubFactory(name string, opts ...stubOption) Factory {
	return func() Presence {
		s := &stubPresence{Base: NewBase(name, time.Second)}
		for _, opt := range opts {
			opt(s)
		}
		return s
	}
}

// testingT is satisfied by both *testing.T and *rapid.T
type testingT interface {
	require.TestingT
	Helper()
}

// writeManifest creates dir/presence.yaml listing names
func writeManifest(t testingT, dir string, names ...string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	var sb strings.Builder
	sb.WriteString("presences:\n")
	for _, n := range names {
		sb.WriteString("  - " + n + "\n")
	}

	path := filepath.Join(dir, DefaultEntryPoint)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func presenceNames(ps []Presence) []string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name())
	}
	return names
}
