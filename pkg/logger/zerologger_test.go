package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestZeroLogger_Info(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("development", buf)

	log.Info("info-test", Field{Key: "provider", Value: "github"})

	output := buf.String()

	if !strings.Contains(output, "info-test") {
		t.Errorf("expected 'info-test' in log, got: %s", output)
	}
	if !strings.Contains(output, `"provider":"github"`) {
		t.Errorf("expected field provider=github, got: %s", output)
	}
	if !strings.Contains(output, `"level":"info"`) {
		t.Errorf("expected level=info, got: %s", output)
	}
}

func TestZeroLogger_DebugShownInDev(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("development", buf)

	log.Debug("debug-test")

	output := buf.String()
	if !strings.Contains(output, "debug-test") {
		t.Errorf("expected debug log in development, got: %s", output)
	}
}

func TestZeroLogger_DebugHiddenInProduction(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("production", buf)

	log.Debug("debug-hidden") // should NOT appear

	output := buf.String()
	if output != "" {
		t.Errorf("expected NO debug log output in production, got: %s", output)
	}
}

func TestZeroLogger_ProductionDoesNotLeakIntoOtherLoggers(t *testing.T) {
	prodBuf := &bytes.Buffer{}
	devBuf := &bytes.Buffer{}
	_ = NewWithWriter("production", prodBuf)
	dev := NewWithWriter("development", devBuf)

	dev.Debug("still-visible")

	if !strings.Contains(devBuf.String(), "still-visible") {
		t.Errorf("expected development logger to keep debug level, got: %s", devBuf.String())
	}
}

func TestZeroLogger_Warn(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("development", buf)

	log.Warn("warn-test", Field{Key: "warn", Value: "yes"})

	output := buf.String()

	if !strings.Contains(output, `"level":"warn"`) {
		t.Errorf("expected warn level, got: %s", output)
	}
	if !strings.Contains(output, `"warn":"yes"`) {
		t.Errorf("expected field warn=yes, got: %s", output)
	}
}

func TestZeroLogger_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter("development", buf)

	log.Error("error-test", Err(errors.New("boom")), Field{Key: "elapsed", Value: 2 * time.Second})

	output := buf.String()

	if !strings.Contains(output, `"level":"error"`) {
		t.Errorf("expected error level, got: %s", output)
	}
	if !strings.Contains(output, `"err":"boom"`) {
		t.Errorf("expected err field, got: %s", output)
	}
	if !strings.Contains(output, `"elapsed":2000`) {
		t.Errorf("expected elapsed duration in ms, got: %s", output)
	}
}

func TestNop_WritesNothing(t *testing.T) {
	log := NewNop()
	log.Error("nothing")
}
