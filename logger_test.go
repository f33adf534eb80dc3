package granite

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNopHandler_Enabled(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("nopHandler.Enabled(%v) = true, want false", level)
		}
	}
}

func TestSetLoggerNilRestoresSilence(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	Logger().Info("visible")
	SetLogger(nil)
	Logger().Info("invisible")

	out := buf.String()
	if !strings.Contains(out, "visible") {
		t.Error("configured logger did not receive records")
	}
	if strings.Contains(out, "invisible") {
		t.Error("nil logger did not silence output")
	}
}

func TestLogDumpsBakedPlan(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	g := buildChain(t)
	if err := g.Bake(); err != nil {
		t.Fatalf("Bake() = %v", err)
	}
	g.Log()

	out := buf.String()
	for _, want := range []string{"hdr", "backbuffer", "main", "post", "physical pass"} {
		if !strings.Contains(out, want) {
			t.Errorf("plan dump missing %q:\n%s", want, out)
		}
	}
}

func TestLogBeforeBakeWarns(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	New().Log()
	if !strings.Contains(buf.String(), "Bake") {
		t.Error("Log on unbaked graph did not warn")
	}
}
