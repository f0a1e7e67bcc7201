package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("yaml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestJSONFormatCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat("json"), WithWriter(&buf)); err != nil {
		t.Fatalf("init: %v", err)
	}

	l := Get().With(String("session_id", "s-1")).Named("tracker")
	l.Info(context.Background(), "frame processed",
		Int("smile", 72),
		Bool("blink", true),
		Duration("elapsed", 200*time.Millisecond),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if rec["msg"] != "frame processed" {
		t.Fatalf("unexpected msg: %v", rec["msg"])
	}
	if rec["session_id"] != "s-1" {
		t.Fatalf("missing session_id: %v", rec)
	}
	group, ok := rec["tracker"].(map[string]any)
	if !ok {
		t.Fatalf("missing tracker group: %v", rec)
	}
	if group["elapsed"] != "200ms" {
		t.Fatalf("unexpected elapsed: %v", group["elapsed"])
	}
	src, _ := group["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Fatalf("unexpected source: %q", src)
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, lvl := range []string{"debug", "INFO", "warn", "warning", "error", ""} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q: %v", lvl, err)
		}
	}
	if err := SetLevelString("loud"); err == nil {
		t.Error("expected error for unknown level")
	}

	_ = SetLevelString("error")
	Get().Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at error level, got %q", buf.String())
	}
	_ = SetLevelString("info")
}
