// Package operator is the owner-facing chat surface: manual update, status
// and failure announcements to the log chat.
package operator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"raspisanie/internal/eventbus"
	"raspisanie/internal/transport"
	"raspisanie/internal/update"
	"raspisanie/pkg/logx"
)

// Updater is the part of update.Service the operator drives.
type Updater interface {
	ForceUpdate()
	Snapshot() update.Snapshot
}

type Config struct {
	Owners   []int64
	GroupLog transport.ChatTarget
}

// Request is one parsed command.
type Request struct {
	Message transport.Message
	Command string
	Args    []string
}

type command struct {
	name    string
	help    string
	handler HandlerFunc
}

type Operator struct {
	adapter transport.Adapter
	svc     Updater
	bus     eventbus.Bus
	log     logx.Logger

	mu       sync.Mutex
	owners   []int64
	groupLog transport.ChatTarget
	failing  bool

	commands []command
	dispatch map[string]HandlerFunc
}

func New(cfg Config, adapter transport.Adapter, svc Updater, bus eventbus.Bus, log logx.Logger) *Operator {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Operator{adapter: adapter, svc: svc, bus: bus, log: log.With(logx.String("comp", "operator"))}
	o.SetConfig(cfg)
	o.commands = []command{
		{name: "update", help: "обновить расписание сейчас", handler: o.cmdUpdate},
		{name: "status", help: "состояние обновления", handler: o.cmdStatus},
		{name: "help", help: "список команд", handler: o.cmdHelp},
	}
	o.dispatch = map[string]HandlerFunc{}
	for _, c := range o.commands {
		o.dispatch[c.name] = Chain(c.handler, MWPanicRecover(o.log), MWRequestLog(o.log), MWTimeout(10*time.Second))
	}
	o.dispatch["start"] = o.dispatch["help"]
	return o
}

// SetConfig swaps owners and the announcement chat.
func (o *Operator) SetConfig(cfg Config) {
	o.mu.Lock()
	o.owners = slices.Clone(cfg.Owners)
	o.groupLog = cfg.GroupLog
	o.mu.Unlock()
}

func (o *Operator) isOwner(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Contains(o.owners, id)
}

// Commands lists the bot menu entries.
func (o *Operator) Commands() []transport.BotCommand {
	out := make([]transport.BotCommand, 0, len(o.commands))
	for _, c := range o.commands {
		out = append(out, transport.BotCommand{Command: c.name, Description: c.help})
	}
	return out
}

// Run handles incoming messages and cycle events until ctx is done.
func (o *Operator) Run(ctx context.Context, in <-chan transport.Message) error {
	var events <-chan eventbus.Event
	if o.bus != nil {
		ch, unsub := o.bus.Subscribe(16)
		defer unsub()
		events = ch
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-in:
			if !ok {
				return errors.New("operator: message channel closed")
			}
			o.Handle(ctx, m)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			o.observe(ctx, ev)
		}
	}
}

// Handle dispatches one message. Non-commands are ignored; commands from
// non-owners get a refusal.
func (o *Operator) Handle(ctx context.Context, m transport.Message) {
	req, ok := parseCommand(m)
	if !ok {
		return
	}
	h, known := o.dispatch[req.Command]
	if !o.isOwner(m.FromID) {
		if known {
			o.reply(ctx, m, "Команда доступна только владельцу.")
		}
		return
	}
	if !known {
		o.reply(ctx, m, "Неизвестная команда. Список: /help")
		return
	}
	_ = h(ctx, req)
}

func parseCommand(m transport.Message) (*Request, bool) {
	fields := strings.Fields(m.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, false
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	if name == "" {
		return nil, false
	}
	return &Request{Message: m, Command: strings.ToLower(name), Args: fields[1:]}, true
}

func (o *Operator) reply(ctx context.Context, m transport.Message, text string) {
	if err := o.adapter.SendText(ctx, m.Chat(), text, nil); err != nil {
		o.log.Warn("reply failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
	}
}

func (o *Operator) cmdUpdate(ctx context.Context, req *Request) error {
	o.svc.ForceUpdate()
	o.log.Info("forced update requested", logx.Int64("from_id", req.Message.FromID))
	return o.adapter.SendText(ctx, req.Message.Chat(), "Обновление запущено.", nil)
}

func (o *Operator) cmdStatus(ctx context.Context, req *Request) error {
	return o.adapter.SendText(ctx, req.Message.Chat(), FormatStatus(o.svc.Snapshot()), nil)
}

func (o *Operator) cmdHelp(ctx context.Context, req *Request) error {
	var b strings.Builder
	for _, c := range o.commands {
		fmt.Fprintf(&b, "/%s - %s\n", c.name, c.help)
	}
	return o.adapter.SendText(ctx, req.Message.Chat(), strings.TrimRight(b.String(), "\n"), nil)
}

// observe announces the first failed cycle of a streak and the recovery.
func (o *Operator) observe(ctx context.Context, ev eventbus.Event) {
	if ev.Type != update.EventCycle {
		return
	}
	res, ok := ev.Data.(update.CycleResult)
	if !ok {
		return
	}
	o.mu.Lock()
	target := o.groupLog
	was := o.failing
	o.failing = res.Result == update.ResultError
	now := o.failing
	o.mu.Unlock()

	var text string
	switch {
	case now && !was:
		msg := "неизвестная ошибка"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		text = fmt.Sprintf("Обновление расписания не удалось: %s", msg)
	case !now && was:
		text = "Обновление расписания восстановлено."
	default:
		return
	}
	if target.IsZero() {
		o.log.Debug("no group_log configured; announcement skipped")
		return
	}
	if err := o.adapter.SendText(ctx, target, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		o.log.Warn("announcement failed", logx.Err(err))
	}
}

const timeLayout = "02.01.2006 15:04:05"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "нет"
	}
	return t.Format(timeLayout)
}

// FormatStatus renders a snapshot for /status.
func FormatStatus(s update.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Состояние: %s\n", s.State)
	fmt.Fprintf(&b, "Расписание: %s\n", s.Schedule)
	fmt.Fprintf(&b, "Циклов: %d\n", s.Cycles)
	if s.LastResult != "" {
		fmt.Fprintf(&b, "Последний запуск: %s (%s)\n", formatTime(s.LastRun), s.LastResult)
	}
	fmt.Fprintf(&b, "Последний успех: %s\n", formatTime(s.LastSuccess))
	if !s.NextRun.IsZero() {
		fmt.Fprintf(&b, "Следующий запуск: %s\n", formatTime(s.NextRun))
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "Ошибка (%s): %s\n", formatTime(s.LastErrorAt), s.LastError)
	}
	if s.Fingerprint != "" {
		fp := s.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Fprintf(&b, "Отпечаток: %s\n", fp)
	}
	if st := s.LastStats; st.Sessions+st.CallEntries+st.Slots > 0 {
		fmt.Fprintf(&b, "Записано: занятий %d, звонков %d, питание %d\n", st.Sessions, st.CallEntries, st.Slots)
	}
	return strings.TrimRight(b.String(), "\n")
}
