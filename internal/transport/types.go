// Package transport is the chat-platform boundary of the operator surface.
package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic, 0 if none
	FromID       int64
	FromUsername string
	Text         string
}

func (m Message) Chat() ChatTarget { return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID} }

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

// ParseChatTarget parses "<chat id>" or "<chat id>/<thread id>". Empty input
// yields the zero target.
func ParseChatTarget(s string) (ChatTarget, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatTarget{}, nil
	}
	chat, thread, hasThread := strings.Cut(s, "/")
	id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil {
		return ChatTarget{}, fmt.Errorf("chat target %q: %w", s, err)
	}
	t := ChatTarget{ChatID: id}
	if hasThread {
		if t.ThreadID, err = strconv.Atoi(strings.TrimSpace(thread)); err != nil {
			return ChatTarget{}, fmt.Errorf("chat target %q: thread: %w", s, err)
		}
	}
	return t, nil
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type BotCommand struct {
	Command     string
	Description string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}

// CommandMenuUpdater is implemented by adapters that can publish a command list.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// Notifier sends text to one fixed chat. It satisfies logx.Notifier.
type Notifier struct {
	Adapter Adapter
	Target  ChatTarget
}

func (n Notifier) Notify(ctx context.Context, text string) error {
	if n.Adapter == nil || n.Target.IsZero() {
		return nil
	}
	return n.Adapter.SendText(ctx, n.Target, text, &SendOptions{DisablePreview: true})
}
