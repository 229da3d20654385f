package operator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raspisanie/internal/eventbus"
	"raspisanie/internal/ingest"
	"raspisanie/internal/transport"
	"raspisanie/internal/update"
	"raspisanie/pkg/logx"
)

type sent struct {
	to   transport.ChatTarget
	text string
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Message) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	f.sent = append(f.sent, sent{to: to, text: text})
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeUpdater struct {
	forced atomic.Int32
	snap   update.Snapshot
}

func (f *fakeUpdater) ForceUpdate()              { f.forced.Add(1) }
func (f *fakeUpdater) Snapshot() update.Snapshot { return f.snap }

const owner = 42

func newOperator(t *testing.T) (*Operator, *fakeAdapter, *fakeUpdater, *eventbus.Memory) {
	t.Helper()
	ad := &fakeAdapter{}
	up := &fakeUpdater{}
	bus := eventbus.New()
	op := New(Config{Owners: []int64{owner}, GroupLog: transport.ChatTarget{ChatID: -100}}, ad, up, bus, logx.Nop())
	return op, ad, up, bus
}

func msg(from int64, text string) transport.Message {
	return transport.Message{ChatID: from, FromID: from, Text: text}
}

func TestOwnerForcesUpdate(t *testing.T) {
	t.Parallel()
	op, ad, up, _ := newOperator(t)

	op.Handle(context.Background(), msg(owner, "/update@raspisanie_bot"))

	assert.EqualValues(t, 1, up.forced.Load())
	require.Len(t, ad.messages(), 1)
	assert.Equal(t, "Обновление запущено.", ad.messages()[0].text)
}

func TestNonOwnerIsRefused(t *testing.T) {
	t.Parallel()
	op, ad, up, _ := newOperator(t)

	op.Handle(context.Background(), msg(7, "/update"))
	op.Handle(context.Background(), msg(7, "/whatever"))
	op.Handle(context.Background(), msg(7, "привет"))

	assert.EqualValues(t, 0, up.forced.Load())
	require.Len(t, ad.messages(), 1)
	assert.Equal(t, "Команда доступна только владельцу.", ad.messages()[0].text)
}

func TestStatus(t *testing.T) {
	t.Parallel()
	op, ad, up, _ := newOperator(t)
	at := time.Date(2024, 10, 14, 9, 0, 0, 0, time.Local)
	up.snap = update.Snapshot{
		State:       update.StateSleeping,
		Schedule:    "every:10m0s",
		Cycles:      3,
		LastResult:  update.ResultOK,
		LastRun:     at,
		LastSuccess: at,
		Fingerprint: "0123456789abcdef",
		LastStats:   ingest.Stats{Sessions: 40, CallEntries: 6},
	}

	op.Handle(context.Background(), msg(owner, "/status"))

	require.Len(t, ad.messages(), 1)
	assert.Equal(t, "Состояние: sleeping\n"+
		"Расписание: every:10m0s\n"+
		"Циклов: 3\n"+
		"Последний запуск: 14.10.2024 09:00:00 (ok)\n"+
		"Последний успех: 14.10.2024 09:00:00\n"+
		"Отпечаток: 0123456789ab\n"+
		"Записано: занятий 40, звонков 6, питание 0", ad.messages()[0].text)
}

func TestFailureStreakAnnouncedOnce(t *testing.T) {
	t.Parallel()
	op, ad, _, bus := newOperator(t)
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan transport.Message)
	done := make(chan error, 1)
	go func() { done <- op.Run(ctx, in) }()

	// Run subscribes asynchronously; a probe command confirms the loop is live.
	in <- msg(owner, "/help")
	require.Eventually(t, func() bool { return len(ad.messages()) == 1 }, time.Second, 5*time.Millisecond)

	fail := update.CycleResult{Result: update.ResultError, Err: errors.New("fetch: connection refused")}
	bus.Publish(eventbus.Event{Type: update.EventCycle, Data: fail})
	bus.Publish(eventbus.Event{Type: update.EventCycle, Data: fail})
	bus.Publish(eventbus.Event{Type: update.EventCycle, Data: update.CycleResult{Result: update.ResultUnchanged}})

	require.Eventually(t, func() bool { return len(ad.messages()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	got := ad.messages()
	assert.Equal(t, transport.ChatTarget{ChatID: -100}, got[1].to)
	assert.Equal(t, "Обновление расписания не удалось: fetch: connection refused", got[1].text)
	assert.Equal(t, "Обновление расписания восстановлено.", got[2].text)
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text string
		cmd  string
		ok   bool
	}{
		{"/status", "status", true},
		{"/Update@bot now", "update", true},
		{"status", "", false},
		{"/", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req, ok := parseCommand(transport.Message{Text: tt.text})
		assert.Equal(t, tt.ok, ok, tt.text)
		if ok {
			assert.Equal(t, tt.cmd, req.Command)
		}
	}
}
