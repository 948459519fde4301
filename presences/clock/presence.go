package clock

import (
	"context"
	"fmt"
	"time"

	"rpp/plugin"
)

// init registers the clock presence
func init() {
	plugin.Register("clock", New)
}

// Presence reports how long the current session has been running
type Presence struct {
	plugin.Base

	label   string
	started time.Time
	now     func() time.Time
}

// New creates the clock presence
func New() plugin.Presence {
	return &Presence{
		Base:  plugin.NewBase("clock", 15*time.Second),
		label: "Working",
		now:   time.Now,
	}
}

// Configure accepts "label" and "enabled" settings
func (p *Presence) Configure(settings map[string]interface{}) error {
	if v, ok := settings["label"]; ok {
		label, ok := v.(string)
		if !ok {
			return fmt.Errorf("label must be a string, got %T", v)
		}
		p.label = label
	}
	if v, ok := settings["enabled"]; ok {
		enabled, ok := v.(bool)
		if !ok {
			return fmt.Errorf("enabled must be a bool, got %T", v)
		}
		p.SetEnabled(enabled)
	}
	return nil
}

// OnLoad records the session start
func (p *Presence) OnLoad(ctx context.Context, out plugin.Publisher) error {
	if err := p.Base.OnLoad(ctx, out); err != nil {
		return err
	}
	p.started = p.now()
	return p.Publish(ctx, p.activity())
}

// OnUpdate republishes the elapsed time
func (p *Presence) OnUpdate(ctx context.Context, rt plugin.Runtime) error {
	return p.Publish(ctx, p.activity())
}

func (p *Presence) activity() plugin.Activity {
	elapsed := p.now().Sub(p.started).Truncate(time.Minute)
	return plugin.Activity{
		Details:    p.label,
		State:      fmt.Sprintf("for %s", formatElapsed(elapsed)),
		LargeImage: "clock",
		StartedAt:  p.started,
	}
}

func formatElapsed(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
