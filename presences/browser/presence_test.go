package browser

import (
	"context"
	"testing"

	"rpp/plugin"
	"rpp/runtime/web"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	connected bool
	tab       web.Tab
	hasTab    bool
}

func (f *fakeRuntime) Connected() bool                  { return f.connected }
func (f *fakeRuntime) Update(ctx context.Context) error { return nil }
func (f *fakeRuntime) ActiveTab() (web.Tab, bool)       { return f.tab, f.hasTab }

type capture struct {
	activities []plugin.Activity
}

func (c *capture) Publish(ctx context.Context, msg plugin.Message) error {
	c.activities = append(c.activities, msg.Payload.(plugin.Activity))
	return nil
}

func load(t *testing.T, settings map[string]interface{}) (*Presence, *capture) {
	t.Helper()
	p := New().(*Presence)
	if settings != nil {
		require.NoError(t, p.Configure(settings))
	}
	out := &capture{}
	require.NoError(t, p.OnLoad(context.Background(), out))
	return p, out
}

func TestBrowser_PublishesActiveTabOnChange(t *testing.T) {
	p, out := load(t, nil)
	rt := &fakeRuntime{
		connected: true,
		hasTab:    true,
		tab:       web.Tab{Title: "Go", URL: "https://go.dev/doc", Active: true},
	}

	require.NoError(t, p.OnUpdate(context.Background(), rt))
	require.NoError(t, p.OnUpdate(context.Background(), rt))
	require.Len(t, out.activities, 1, "unchanged tab is not republished")

	a := out.activities[0]
	assert.Equal(t, "Go", a.Details)
	assert.Equal(t, "go.dev", a.State)
	assert.False(t, a.StartedAt.IsZero())

	rt.tab = web.Tab{Title: "Pkg", URL: "https://pkg.go.dev", Active: true}
	require.NoError(t, p.OnUpdate(context.Background(), rt))
	require.Len(t, out.activities, 2)
	assert.Equal(t, "pkg.go.dev", out.activities[1].State)
}

func TestBrowser_WithoutRuntime(t *testing.T) {
	p, out := load(t, nil)

	require.NoError(t, p.OnUpdate(context.Background(), nil))
	require.NoError(t, p.OnUpdate(context.Background(), &fakeRuntime{connected: false, hasTab: true}))
	require.NoError(t, p.OnUpdate(context.Background(), &fakeRuntime{connected: true}))
	assert.Empty(t, out.activities)
}

func TestBrowser_ShowURLAndIgnoredHosts(t *testing.T) {
	p, out := load(t, map[string]interface{}{
		"show_url":     true,
		"ignore_hosts": []interface{}{"mail.example.com", "bank.test"},
	})

	rt := &fakeRuntime{connected: true, hasTab: true, tab: web.Tab{Title: "Inbox", URL: "https://mail.example.com/u/0"}}
	require.NoError(t, p.OnUpdate(context.Background(), rt))
	assert.Empty(t, out.activities)

	rt.tab = web.Tab{Title: "Login", URL: "https://www.bank.test/login"}
	require.NoError(t, p.OnUpdate(context.Background(), rt))
	assert.Empty(t, out.activities, "subdomains of ignored hosts are ignored")

	rt.tab = web.Tab{Title: "Docs", URL: "https://go.dev/doc"}
	require.NoError(t, p.OnUpdate(context.Background(), rt))
	require.Len(t, out.activities, 1)
	assert.Equal(t, "https://go.dev/doc", out.activities[0].State)
}

func TestBrowser_Configure(t *testing.T) {
	p := New().(*Presence)
	assert.True(t, p.UsesRuntime())

	assert.Error(t, p.Configure(map[string]interface{}{"show_url": "yes"}))
	assert.Error(t, p.Configure(map[string]interface{}{"ignore_hosts": "a.com"}))
	assert.Error(t, p.Configure(map[string]interface{}{"ignore_hosts": []interface{}{1}}))
}
