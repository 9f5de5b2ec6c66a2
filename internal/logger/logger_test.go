package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintfWritesCategoryAndMessage(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	SetMinLevel(LevelDebug)
	defer SetMinLevel(LevelInfo)

	Printf("session", "client %d connected", 7)

	out := buf.String()
	if !strings.Contains(out, "session") {
		t.Errorf("expected output to contain category, got %q", out)
	}
	if !strings.Contains(out, "client 7 connected") {
		t.Errorf("expected output to contain formatted message, got %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("expected output to end in newline, got %q", out)
	}
}

func TestWarningAlwaysEmitted(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	SetCategoryFilter([]string{"session"})
	defer SetCategoryFilter(nil)

	Warning("disk almost full")

	if !strings.Contains(buf.String(), "disk almost full") {
		t.Errorf("expected warning to bypass category filter, got %q", buf.String())
	}
}

func TestCategoryFilterSuppressesOthers(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	SetMinLevel(LevelDebug)
	defer SetMinLevel(LevelInfo)

	SetCategoryFilter([]string{"session"})
	defer SetCategoryFilter(nil)

	Printf("historylog", "should be suppressed")

	if buf.Len() != 0 {
		t.Errorf("expected filtered category to produce no output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarning,
		"warn":    LevelWarning,
		"error":   LevelError,
	}
	for input, want := range cases {
		got, ok := ParseLevel(input)
		if !ok || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, true", input, got, ok, want)
		}
	}

	if _, ok := ParseLevel("bogus"); ok {
		t.Error("ParseLevel(\"bogus\") should not be recognized")
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		512:        "512 B",
		2048:       "2.0 KB",
		5 * 1 << 20: "5.0 MB",
	}
	for input, want := range cases {
		if got := FormatBytes(input); got != want {
			t.Errorf("FormatBytes(%d) = %q; want %q", input, got, want)
		}
	}
}
