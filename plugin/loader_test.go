package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func newTestLoader(r *Registry, opts ...LoaderOption) *Loader {
	return NewLoader(append([]LoaderOption{WithRegistry(r)}, opts...)...)
}

func TestLoader_LoadsValidModules(t *testing.T) {
	r := NewRegistry()
	r.Register("clock", stubFactory("clock"))
	r.Register("music", stubFactory("music"))

	root := t.TempDir()
	dirs := map[string]string{
		"clock": filepath.Join(root, "clock"),
		"music": filepath.Join(root, "nested", "music"),
	}
	for name, dir := range dirs {
		writeManifest(t, dir, name)
	}

	result := newTestLoader(r).Load(context.Background(), root)

	assert.Empty(t, result.Errors)
	assert.False(t, result.RequiresRuntime)
	assert.ElementsMatch(t, []string{"clock", "music"}, presenceNames(result.Presences))

	for _, p := range result.Presences {
		assert.Equal(t, dirs[p.Name()], p.Path())
	}
}

func TestLoader_SkipsDisabledPresences(t *testing.T) {
	r := NewRegistry()
	r.Register("on", stubFactory("on"))
	r.Register("off", stubFactory("off", disabled(), withRuntime()))

	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "a"), "on", "off")

	result := newTestLoader(r).Load(context.Background(), root)

	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"on"}, presenceNames(result.Presences))
	assert.True(t, result.RequiresRuntime, "disabled presences still count toward the runtime need")
}

func TestLoader_RuntimeAggregation(t *testing.T) {
	r := NewRegistry()
	r.Register("plain", stubFactory("plain"))
	r.Register("web", stubFactory("web", withRuntime()))

	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "plain"), "plain")

	result := newTestLoader(r).Load(context.Background(), root)
	assert.False(t, result.RequiresRuntime)

	writeManifest(t, filepath.Join(root, "web"), "web")
	result = newTestLoader(r).Load(context.Background(), root)
	assert.True(t, result.RequiresRuntime)
	assert.Len(t, result.Presences, 2)
}

func TestLoader_ReservedPrefix(t *testing.T) {
	r := NewRegistry()
	r.Register("clock", stubFactory("clock"))

	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "__cache__"), "clock")
	writeManifest(t, filepath.Join(root, "ok", "__private"), "clock")

	result := newTestLoader(r).Load(context.Background(), root)
	assert.Empty(t, result.Presences)
	assert.Empty(t, result.Errors)

	// a reserved entry point name is never loaded either
	dir := filepath.Join(root, "other")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "__presence.yaml"), []byte("presences: [clock]\n"), 0o644))

	result = newTestLoader(r, WithEntryPoint("__presence.yaml")).Load(context.Background(), root)
	assert.Empty(t, result.Presences)
}

func TestLoader_ErrorsAreIsolated(t *testing.T) {
	r := NewRegistry()
	r.Register("good", stubFactory("good"))
	r.Register("boom", func() Presence { panic("factory exploded") })
	r.Register("zero", func() Presence {
		return &zeroInterval{stubPresence: stubPresence{Base: NewBase("zero", 0)}}
	})

	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "a"), "good")
	writeManifest(t, filepath.Join(root, "b"), "good", "unknown")
	writeManifest(t, filepath.Join(root, "c"), "boom")
	writeManifest(t, filepath.Join(root, "d"), "zero")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "e"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "e", DefaultEntryPoint), []byte("presences: []\n"), 0o644))

	core, logs := observer.New(zapcore.InfoLevel)
	result := newTestLoader(r, WithLoaderLogger(zap.New(core))).Load(context.Background(), root)

	assert.Equal(t, []string{"good"}, presenceNames(result.Presences), "manifest b is all or nothing")
	require.Len(t, result.Errors, 4)

	for _, err := range result.Errors {
		assert.True(t, IsDiscoveryError(err))
	}
	assert.ErrorIs(t, result.Errors[0], ErrUnknownPresence)
	assert.ErrorIs(t, result.Errors[1], ErrFactoryPanic)
	assert.ErrorContains(t, result.Errors[2], "update interval must be positive")
	assert.ErrorIs(t, result.Errors[3], ErrEmptyManifest)

	var derr *DiscoveryError
	require.True(t, errors.As(result.Errors[0], &derr))
	assert.Equal(t, filepath.Join(root, "b", DefaultEntryPoint), derr.Path)

	assert.Equal(t, 4, logs.FilterMessage("failed to load presence module").Len())
}

func TestLoader_DefaultIntervalAndDevMode(t *testing.T) {
	r := NewRegistry()
	r.Register("lazy", stubFactory("lazy", withInterval(0)))

	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "lazy"), "lazy")

	result := newTestLoader(r, WithDevMode(true), WithDefaultInterval(3*time.Second)).Load(context.Background(), root)
	require.Len(t, result.Presences, 1)

	p := result.Presences[0]
	assert.Equal(t, 3*time.Second, p.UpdateInterval())
	assert.True(t, p.DevMode())
}

func TestLoader_ConfiguresPresences(t *testing.T) {
	r := NewRegistry()
	r.Register("clock", stubFactory("clock"))

	root := t.TempDir()
	dir := filepath.Join(root, "clock")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultEntryPoint),
		[]byte("presences: [clock]\nsettings:\n  label: Focus\n"), 0o644))

	result := newTestLoader(r).Load(context.Background(), root)
	require.Len(t, result.Presences, 1)

	s := result.Presences[0].(*stubPresence)
	assert.Equal(t, "Focus", s.settings["label"])
}

func TestLoader_DuplicateNamesInManifest(t *testing.T) {
	r := NewRegistry()
	r.Register("clock", stubFactory("clock"))

	root := t.TempDir()
	writeManifest(t, root, "clock", "clock")

	result := newTestLoader(r).Load(context.Background(), root)
	assert.Len(t, result.Presences, 1)
}

func TestLoader_SymlinkedModuleLoadedOnce(t *testing.T) {
	r := NewRegistry()
	r.Register("clock", stubFactory("clock"))

	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "real"), "clock")

	// WalkDir does not follow directory symlinks, so link the manifest itself
	link := filepath.Join(root, "alias")
	require.NoError(t, os.MkdirAll(link, 0o755))
	if err := os.Symlink(filepath.Join(root, "real", DefaultEntryPoint), filepath.Join(link, DefaultEntryPoint)); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	result := newTestLoader(r).Load(context.Background(), root)
	assert.Len(t, result.Presences, 1)
	assert.Empty(t, result.Errors)
}

func TestLoader_MissingRoot(t *testing.T) {
	result := newTestLoader(NewRegistry()).Load(context.Background(), filepath.Join(t.TempDir(), "missing"))

	assert.Empty(t, result.Presences)
	require.Len(t, result.Errors, 1)
	assert.True(t, IsDiscoveryError(result.Errors[0]))
}

func TestLoader_EmptyRoot(t *testing.T) {
	result := newTestLoader(NewRegistry()).Load(context.Background(), t.TempDir())

	assert.Empty(t, result.Presences)
	assert.Empty(t, result.Errors)
	assert.False(t, result.RequiresRuntime)
}

func TestLoader_RequirementsGateLoading(t *testing.T) {
	r := NewRegistry()
	r.Register("needy", func() Presence {
		return &needyPresence{stubPresence: stubPresence{Base: NewBase("needy", time.Second)}}
	})

	root := t.TempDir()
	writeManifest(t, root, "needy")

	t.Setenv("RPP_TEST_NEEDY", "")
	result := newTestLoader(r).Load(context.Background(), root)
	assert.Empty(t, result.Presences)
	require.Len(t, result.Errors, 1)
	assert.ErrorContains(t, result.Errors[0], "RPP_TEST_NEEDY")

	t.Setenv("RPP_TEST_NEEDY", "1")
	result = newTestLoader(r).Load(context.Background(), root)
	assert.Len(t, result.Presences, 1)
}

type zeroInterval struct {
	stubPresence
}

func (z *zeroInterval) UpdateInterval() time.Duration {
	return 0
}

type needyPresence struct {
	stubPresence
}

func (n *needyPresence) Requirements() *RequirementChecker {
	c := NewRequirementChecker(n.Name())
	c.AddRequired("env", "needs RPP_TEST_NEEDY", RequireEnvVar("RPP_TEST_NEEDY"))
	return c
}

func TestLoader_ValidAndInvalidCounts(t *testing.T) {
	r := NewRegistry()
	r.Register("ok", stubFactory("ok"))

	rapid.Check(t, func(rt *rapid.T) {
		valid := rapid.IntRange(0, 6).Draw(rt, "valid")
		invalid := rapid.IntRange(0, 6).Draw(rt, "invalid")

		root, err := os.MkdirTemp("", "rpp-loader-")
		require.NoError(rt, err)
		defer os.RemoveAll(root)

		for i := 0; i < valid; i++ {
			writeManifest(rt, filepath.Join(root, fmt.Sprintf("valid-%d", i)), "ok")
		}
		for i := 0; i < invalid; i++ {
			writeManifest(rt, filepath.Join(root, fmt.Sprintf("invalid-%d", i)), fmt.Sprintf("missing-%d", i))
		}

		result := newTestLoader(r).Load(context.Background(), root)
		assert.Len(rt, result.Presences, valid)
		assert.Len(rt, result.Errors, invalid)
	})
}
