package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"rpp/plugin"
	"rpp/runtime/web"
)

// init registers the browser presence
func init() {
	plugin.Register("browser", New)
}

// TabSource is the part of the web runtime the presence reads
type TabSource interface {
	ActiveTab() (web.Tab, bool)
}

// Presence reports the active browser tab seen by the web runtime
type Presence struct {
	plugin.Base

	mu        sync.Mutex
	showURL   bool
	ignore    []string
	lastTab   web.Tab
	tabSince  time.Time
	published bool
}

// New creates the browser presence
func New() plugin.Presence {
	p := &Presence{
		Base: plugin.NewBase("browser", 5*time.Second),
	}
	p.SetUsesRuntime(true)
	return p
}

// Configure accepts "show_url" and "ignore_hosts" settings
func (p *Presence) Configure(settings map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := settings["show_url"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("show_url must be a bool, got %T", v)
		}
		p.showURL = b
	}
	if v, ok := settings["ignore_hosts"]; ok {
		list, ok := v.([]interface{})
		if !ok {
			return fmt.Errorf("ignore_hosts must be a list, got %T", v)
		}
		for _, item := range list {
			host, ok := item.(string)
			if !ok {
				return fmt.Errorf("ignore_hosts entries must be strings, got %T", item)
			}
			p.ignore = append(p.ignore, strings.ToLower(host))
		}
	}
	return nil
}

// OnUpdate publishes the active tab when it changed
func (p *Presence) OnUpdate(ctx context.Context, rt plugin.Runtime) error {
	if rt == nil || !rt.Connected() {
		return nil
	}
	source, ok := rt.(TabSource)
	if !ok {
		return nil
	}

	tab, ok := source.ActiveTab()
	if !ok {
		return nil
	}

	p.mu.Lock()
	if p.published && tab.URL == p.lastTab.URL && tab.Title == p.lastTab.Title {
		p.mu.Unlock()
		return nil
	}
	if tab.URL != p.lastTab.URL {
		p.tabSince = time.Now()
	}
	p.lastTab = tab
	p.published = true
	activity, skip := p.activity(tab)
	p.mu.Unlock()

	if skip {
		return nil
	}
	return p.Publish(ctx, activity)
}

func (p *Presence) activity(tab web.Tab) (plugin.Activity, bool) {
	host := ""
	if u, err := url.Parse(tab.URL); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	for _, ignored := range p.ignore {
		if host == ignored || strings.HasSuffix(host, "."+ignored) {
			return plugin.Activity{}, true
		}
	}

	state := host
	if p.showURL || p.DevMode() {
		state = tab.URL
	}

	return plugin.Activity{
		Details:    tab.Title,
		State:      state,
		LargeImage: "browser",
		StartedAt:  p.tabSince,
	}, false
}
