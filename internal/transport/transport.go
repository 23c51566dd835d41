// Package transport carries chat events in and reply messages out. The
// engine is transport-agnostic: push (webhook, NATS subscription) and pull
// (HTTP long-poll) adapters deliver the same Event type.
package transport

import "context"

// Event is one inbound chat event. Either Text or Callback is set; Callback
// carries the data token of a pressed inline-menu button.
type Event struct {
	ChatID   string `json:"chat_id"`
	Handle   string `json:"handle,omitempty"`
	Text     string `json:"text,omitempty"`
	Callback string `json:"callback,omitempty"`
}

// Input returns the payload to feed the state machine: the callback token
// when present, the raw text otherwise.
func (e Event) Input() string {
	if e.Callback != "" {
		return e.Callback
	}
	return e.Text
}

// Button is one inline-menu choice.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Message is one outbound chat message, optionally with an inline menu.
type Message struct {
	ChatID string     `json:"chat_id"`
	Text   string     `json:"text"`
	Menu   [][]Button `json:"menu,omitempty"`
}

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Handler processes one inbound event. Processing failures stay inside the
// handler; adapters never propagate them back to the chat network.
type Handler func(ctx context.Context, ev Event)
