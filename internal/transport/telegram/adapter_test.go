package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("короткое", 10); len(got) != 1 || got[0] != "короткое" {
		t.Fatalf("short text split: %q", got)
	}

	line := strings.Repeat("ж", 30)
	text := strings.Join([]string{line, line, line, line}, "\n")
	got := splitText(text, 70)
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2: %q", len(got), got)
	}
	for _, c := range got {
		if n := utf8.RuneCountInString(c); n > 70 {
			t.Fatalf("chunk has %d runes", n)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk keeps boundary newline: %q", c)
		}
	}
	if strings.Join(got, "\n") != text {
		t.Fatal("chunks do not reassemble the text")
	}

	long := strings.Repeat("a", 25)
	got = splitText(long, 10)
	if len(got) != 3 || got[2] != "aaaaa" {
		t.Fatalf("hard split: %q", got)
	}
}
