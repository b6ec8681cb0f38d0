// Package wire defines the JSON messages exchanged between the render
// coordinator and a hosted preview view.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Outbound commands.
const (
	// CommandRenderDot asks the view to render the attached source.
	CommandRenderDot = "renderDot"
	// CommandSetConfig pushes view tuning (transition timings).
	CommandSetConfig = "setConfig"
	// CommandReveal asks the view to bring itself into focus.
	CommandReveal = "reveal"
	// CommandShowWarning surfaces an advisory to the user.
	CommandShowWarning = "showWarning"
)

// Inbound commands.
const (
	// CommandRenderFinished reports completion (or failure) of a render.
	CommandRenderFinished = "onRenderFinished"
	// CommandPageLoaded reports that the view finished (re)initializing.
	CommandPageLoaded = "onPageLoaded"
)

// OutboundMessage is a coordinator -> view message.
type OutboundMessage struct {
	Command string `json:"command"`
	Value   any    `json:"value,omitempty"`
}

// InboundMessage is a view -> coordinator message.
type InboundMessage struct {
	Command string        `json:"command"`
	Value   *InboundValue `json:"value,omitempty"`
}

// InboundValue is the optional payload of an inbound message.
type InboundValue struct {
	// Err is whatever the view reported as a failure: usually a string, but
	// an error object is tolerated.
	Err  json.RawMessage `json:"err,omitempty"`
	Type string          `json:"type,omitempty"`
	Data string          `json:"data,omitempty"`
}

// ViewConfig is the payload of CommandSetConfig.
type ViewConfig struct {
	TransitionDelay    int64 `json:"transitionDelay"`
	TransitionDuration int64 `json:"transitionDuration"`
}

// Advisory is the payload of CommandShowWarning.
type Advisory struct {
	Message string   `json:"message"`
	Actions []string `json:"actions,omitempty"`
	// SettingsKey names the setting the "Settings" action should open.
	SettingsKey string `json:"settingsKey,omitempty"`
}

// RenderError is a render failure reported by the view.
type RenderError struct {
	Detail string
}

func (e *RenderError) Error() string {
	return "render failed: " + e.Detail
}

// RenderErr extracts the render failure carried by the message, if any.
// A missing value, a missing err field, JSON null, false, "" and {} all mean
// success.
func (m InboundMessage) RenderErr() error {
	if m.Value == nil {
		return nil
	}
	return m.Value.RenderErr()
}

// RenderErr implements InboundMessage.RenderErr for the value alone.
func (v *InboundValue) RenderErr() error {
	if v == nil {
		return nil
	}
	raw := bytes.TrimSpace(v.Err)
	switch string(raw) {
	case "", "null", "false", `""`, "{}":
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &RenderError{Detail: s}
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return &RenderError{Detail: obj.Message}
	}
	return &RenderError{Detail: string(raw)}
}

// DecodeInbound parses a single inbound frame.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("decode inbound message: %w", err)
	}
	if strings.TrimSpace(msg.Command) == "" {
		return InboundMessage{}, fmt.Errorf("decode inbound message: missing command")
	}
	return msg, nil
}

// String renders the message for logs.
func (m InboundMessage) String() string {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%#v", m)
	}
	return string(data)
}
