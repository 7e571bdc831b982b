package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: DEBUG},
		{in: "INFO", want: INFO},
		{in: "", want: INFO},
		{in: "warning", want: WARN},
		{in: " error ", want: ERROR},
		{in: "trace", want: INFO, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_ComponentAndSortedFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf, MinLevel: DEBUG, UseColor: false})

	WithComponent("COVERART").
		WithFields(map[string]any{"status": 403, "path": "../x"}).
		Warn("rejected %s", "request")

	line := buf.String()
	if !strings.HasPrefix(line, "[WARN] ") {
		t.Fatalf("unexpected prefix: %q", line)
	}
	if !strings.Contains(line, "[COVERART] rejected request | path=../x status=403") {
		t.Fatalf("unexpected line: %q", line)
	}
}

func TestLogger_MinLevelAppliesToExistingComponents(t *testing.T) {
	var buf bytes.Buffer
	l := WithComponent("EARLY")

	Init(Config{Output: &buf, MinLevel: WARN})
	l.Info("hidden")
	l.Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("error message missing: %q", out)
	}
	if l.Enabled(INFO) {
		t.Fatal("INFO should be disabled at WARN")
	}
}
