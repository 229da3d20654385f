package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChatTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    ChatTarget
		wantErr bool
	}{
		{in: "", want: ChatTarget{}},
		{in: "-1001234567890", want: ChatTarget{ChatID: -1001234567890}},
		{in: " -100123/45 ", want: ChatTarget{ChatID: -100123, ThreadID: 45}},
		{in: "group", wantErr: true},
		{in: "-100123/x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseChatTarget(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

type recordingAdapter struct {
	Adapter
	sent []string
}

func (r *recordingAdapter) SendText(_ context.Context, _ ChatTarget, text string, _ *SendOptions) error {
	r.sent = append(r.sent, text)
	return nil
}

func TestNotifierSkipsEmptyTarget(t *testing.T) {
	t.Parallel()
	ad := &recordingAdapter{}
	require.NoError(t, Notifier{Adapter: ad}.Notify(context.Background(), "lost"))
	require.NoError(t, Notifier{Adapter: ad, Target: ChatTarget{ChatID: 7}}.Notify(context.Background(), "[ERROR] cycle failed"))
	assert.Equal(t, []string{"[ERROR] cycle failed"}, ad.sent)
}
