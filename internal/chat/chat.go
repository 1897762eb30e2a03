// Package chat is the platform-neutral boundary between the bot and a chat service.
package chat

import (
	"context"
	"fmt"
	"strings"
)

type Button struct {
	Label  string
	Action string
}

// Message - Buttons are laid out row by row
type Message struct {
	Text    string
	Buttons [][]Button
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

func (r MessageRef) IsZero() bool { return r.ChannelID == "" && r.MessageID == "" }

// Poster publishes and edits messages on one platform.
type Poster interface {
	Post(ctx context.Context, channelID string, msg Message) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, msg Message) error
	Delete(ctx context.Context, ref MessageRef) error
}

type ActionKind string

const (
	ActionRegister ActionKind = "reg"
	ActionSend     ActionKind = "send"
	ActionPick     ActionKind = "pick"
)

// Action is the decoded payload of a button press.
type Action struct {
	Kind   ActionKind
	Symbol string
}

func (a Action) String() string {
	if a.Kind == ActionSend {
		return string(ActionSend)
	}
	return string(a.Kind) + ":" + a.Symbol
}

func RegisterAction(symbol string) string { return Action{Kind: ActionRegister, Symbol: symbol}.String() }

func PickAction(symbol string) string { return Action{Kind: ActionPick, Symbol: symbol}.String() }

func SendAction() string { return string(ActionSend) }

// ParseAction decodes "reg:<symbol>", "pick:<symbol>" or "send".
func ParseAction(data string) (Action, error) {
	data = strings.TrimSpace(data)
	if data == string(ActionSend) {
		return Action{Kind: ActionSend}, nil
	}
	kind, symbol, ok := strings.Cut(data, ":")
	if !ok || symbol == "" {
		return Action{}, fmt.Errorf("malformed action %q", data)
	}
	switch ActionKind(kind) {
	case ActionRegister, ActionPick:
		return Action{Kind: ActionKind(kind), Symbol: symbol}, nil
	}
	return Action{}, fmt.Errorf("unknown action %q", kind)
}
