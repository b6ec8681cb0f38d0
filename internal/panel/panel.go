package panel

import (
	"context"

	"github.com/justinchuby/vscode-interactive-graphviz/internal/logger"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/preview"
	"github.com/justinchuby/vscode-interactive-graphviz/internal/wire"
)

var (
	_ preview.Panel    = (*Panel)(nil)
	_ preview.Notifier = (*Panel)(nil)
)

// Panel is the view of one preview as seen by its scheduler.
type Panel struct {
	hub *Hub
	id  string
}

// ID returns the preview id.
func (p *Panel) ID() string { return p.id }

// SendRender implements preview.Panel.
func (p *Panel) SendRender(ctx context.Context, source string) error {
	return p.hub.send(ctx, p.id, wire.OutboundMessage{Command: wire.CommandRenderDot, Value: source})
}

// SendConfig implements preview.Panel.
func (p *Panel) SendConfig(ctx context.Context, cfg wire.ViewConfig) error {
	return p.hub.send(ctx, p.id, wire.OutboundMessage{Command: wire.CommandSetConfig, Value: cfg})
}

// Reveal implements preview.Panel.
func (p *Panel) Reveal(ctx context.Context, target string) error {
	return p.hub.send(ctx, p.id, wire.OutboundMessage{Command: wire.CommandReveal, Value: target})
}

// Warn implements preview.Notifier. Advisories for a detached view are only
// logged.
func (p *Panel) Warn(ctx context.Context, adv wire.Advisory) {
	err := p.hub.send(ctx, p.id, wire.OutboundMessage{Command: wire.CommandShowWarning, Value: adv})
	if err != nil {
		logger.Warnf("[panel] %s: advisory not delivered (%v): %s", p.id, err, adv.Message)
	}
}
