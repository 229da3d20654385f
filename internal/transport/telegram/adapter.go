// Package telegram implements transport.Adapter over telebot long polling.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"raspisanie/internal/runtime/supervisor"
	"raspisanie/internal/transport"
	"raspisanie/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	out atomic.Pointer[chan<- transport.Message]

	runMu sync.Mutex
	sup   *supervisor.Supervisor

	dropped atomic.Uint64
}

var _ transport.Adapter = (*Adapter)(nil)

// New connects to the Bot API to validate the token.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, _ tele.Context) {
			log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log.With(logx.String("comp", "telegram")), bot: b}
	b.Handle(tele.OnText, a.onText)
	return a, nil
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || m.Chat == nil {
		return nil
	}
	out := a.out.Load()
	if out == nil {
		return nil
	}
	msg := transport.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		ThreadID:     m.ThreadID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		Text:         m.Text,
	}
	select {
	case *out <- msg:
	default:
		a.dropped.Add(1)
	}
	return nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log))
	sup := a.sup

	sup.Go0("telegram.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if n := a.dropped.Swap(0); n > 0 {
					a.log.Warn("incoming messages dropped", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
			}
		}
	})
	sup.Go0("telegram.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until Stop; an early return is restarted.
	sup.GoRestart("telegram.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		if c.Err() != nil {
			return nil
		}
		return errors.New("polling stopped unexpectedly")
	},
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithPublishFirstError(true),
	)
	return nil
}

// Stop cancels polling and waits at most a short grace period; a pending
// getUpdates long poll is not worth holding shutdown for.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.out.Store(nil)
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		a.log.Debug("telegram stopped with error", logx.Err(err))
	}
	a.log.Info("polling stopped")
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateMenuCommands publishes the bot command list (setMyCommands).
func (a *Adapter) UpdateMenuCommands(_ context.Context, cmds []transport.BotCommand) error {
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		list = append(list, tele.Command{Text: strings.TrimPrefix(c.Command, "/"), Description: c.Description})
	}
	return a.bot.SetCommands(list)
}

// splitText cuts s into chunks of at most limit runes, preferring line breaks.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
