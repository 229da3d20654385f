package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raspisanie/internal/config"
	"raspisanie/internal/parsing"
	"raspisanie/internal/timetable"
	"raspisanie/internal/update"
)

const page = `<html><body>
<p><a href="zvonki.html">Расписание звонков</a></p>
<p>15.10.2024</p>
<table>
<tr><td></td><td>1-ИС-1</td><td>2-ПК-1</td></tr>
<tr><td>1</td><td>Физика Иванов А Б ауд 305</td><td>Химия</td></tr>
</table></body></html>`

const calls = `<html><body><div id="main"><table>
<tr><td>1</td><td>8.30-10.00</td></tr>
<tr><td>2</td><td>10.10-11.40</td></tr>
</table></div></body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/raspisanie/index.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/raspisanie/zvonki.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(calls))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestApp(t *testing.T, url string) *App {
	t.Helper()
	path := writeConfig(t, fmt.Sprintf(`
logging:
  level: error
storage:
  driver: memory
update:
  url: %s
  schedule: 1h
parsing:
  subject_aliases:
    химия: Химия и экология
`, url))
	a, err := New(config.NewConfigManager(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background(), StopOnce) })
	return a
}

func TestRunOnceStoresTimetable(t *testing.T) {
	srv := newSite(t)
	a := newTestApp(t, srv.URL+"/raspisanie/index.html")
	ctx := context.Background()

	res, err := a.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, update.ResultOK, res.Result)
	assert.Equal(t, 2, res.Stats.Sessions)
	assert.Equal(t, 2, res.Stats.CallEntries)

	sessions, err := a.store.Sessions(ctx, timetable.Date{Year: 2024, Month: 10, Day: 15})
	require.NoError(t, err)
	subjects := map[string]bool{}
	for _, s := range sessions {
		subjects[s.Subject] = true
	}
	assert.True(t, subjects["Химия и экология"], "configured subject alias applies: %v", subjects)
	assert.True(t, subjects["Физика"])

	res, err = a.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, update.ResultUnchanged, res.Result)
	assert.NoError(t, a.health())
}

func TestHealthReportsFailedCycle(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	a := newTestApp(t, srv.URL+"/raspisanie/index.html")

	require.NoError(t, a.health())
	res, err := a.RunOnce(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, update.ResultError, res.Result)
	assert.Error(t, a.health())
}

func TestStartStop(t *testing.T) {
	srv := newSite(t)
	a := newTestApp(t, srv.URL+"/raspisanie/index.html")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	require.Eventually(t, func() bool {
		return a.Updates().Snapshot().LastResult == update.ResultOK
	}, 5*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopSignal))
	assert.Equal(t, update.StateStopped, a.Updates().State())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\nupdate:\n  url: not a url\n")
	_, err := New(config.NewConfigManager(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update.url")
}

func TestMapping(t *testing.T) {
	cfg := &config.Config{}
	cfg.Parsing.CabinetAliases = map[string]int{"акт/з": 901}
	cfg.Telegram.GroupLog = "-100123/7"
	cfg.Update.Schedule = "every banana"

	sc, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, defaultDBPath, sc.Path)
	assert.Equal(t, 5*time.Second, sc.BusyTimeout)

	aliases := cabinetAliases(cfg)
	assert.Equal(t, 901, aliases["акт/з"])
	for k, v := range parsing.DefaultCabinetAliases {
		assert.Equal(t, v, aliases[k])
	}

	cfg.Parsing.Abbreviations = []string{"СД"}
	abbr := abbreviations(cfg)
	assert.Subset(t, abbr, parsing.DefaultAbbreviations)
	assert.Contains(t, abbr, "СД")
	cell := parsing.New(parsing.Options{Abbreviations: abbr}).Extractor().Extract("Технологии СД")
	require.NotNil(t, cell)
	assert.Equal(t, "Технологии СД", cell.Subject)

	oc, err := mapOperatorConfig(cfg)
	require.NoError(t, err)
	assert.EqualValues(t, -100123, oc.GroupLog.ChatID)
	assert.Equal(t, 7, oc.GroupLog.ThreadID)

	_, err = mapUpdateConfig(cfg)
	assert.Error(t, err)

	cfg.Logging.Telegram.Enabled = true
	assert.False(t, mapLogConfig(cfg).Notify.Enabled, "notify needs telegram enabled")
	cfg.Telegram.Enabled = true
	assert.True(t, mapLogConfig(cfg).Notify.Enabled)
}
