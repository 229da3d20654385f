package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))

	log.Info("cycle finished", Int("sessions", 3), Err(errors.New("boom")), Err(nil))
	log.Trace("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "cycle finished", m["message"])
	assert.Equal(t, "test", m["comp"])
	assert.EqualValues(t, 3, m["sessions"])
	assert.Equal(t, "boom", m["err"])
	assert.Contains(t, m["caller"], "logging_test.go:")
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	zero.Error("dropped")
	assert.False(t, Nop().IsZero())
	assert.False(t, Nop().Enabled(LevelError))
}

func TestValidLevel(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"info", true},
		{"WARNING", true},
		{" debug ", true},
		{"verbose", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidLevel(tt.in), tt.in)
	}
}

func TestRenderLine(t *testing.T) {
	got := renderLine([]byte(`{"level":"error","message":"update failed","time":"x","caller":"a.go:1","url":"http://x","err":"timeout"}`))
	assert.Equal(t, "[ERROR] update failed\n- err=timeout\n- url=http://x", got)
	assert.Equal(t, "not json", renderLine([]byte("not json\n")))
}

type chanNotifier chan string

func (c chanNotifier) Notify(_ context.Context, text string) error {
	c <- text
	return nil
}

func TestServiceNotifiesAtMinLevel(t *testing.T) {
	n := make(chanNotifier, 4)
	svc, log := New(Config{Level: "debug", Notify: NotifyConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10}}, n)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("routine")
	log.Warn("fetch failed", String("url", "http://college.test"))

	select {
	case got := <-n:
		assert.Equal(t, "[WARN] fetch failed\n- url=http://college.test", got)
	case <-time.After(2 * time.Second):
		t.Fatal("warn line was not forwarded")
	}
	select {
	case got := <-n:
		t.Fatalf("unexpected notification %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, nil)

	log.Debug("filtered")
	log.Info("stored", String("k", "v"))
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Warn("filtered after apply")
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"stored"`)
	assert.NotContains(t, string(b), "filtered")
}
