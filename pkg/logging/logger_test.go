package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLevelsWriteExpectedOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "text", "debug")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=dbg", "a=1",
		"level=INFO", "msg=inf", "b=2",
		"level=WARN", "msg=wrn", "c=3",
		"level=ERROR", "msg=err", "d=4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "json", "info")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.With("template_id", "nda").Info(context.Background(), "verified", "status", "VERIFIED")

	out := buf.String()
	for _, want := range []string{`"template_id":"nda"`, `"status":"VERIFIED"`, `"msg":"verified"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(&buf, "text", "warn")
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}

func TestNewRejectsUnknownOptions(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := New(&bytes.Buffer{}, "text", "loud"); err == nil {
		t.Fatalf("expected level error")
	}
}

func TestNopDoesNotPanic(t *testing.T) {
	log := Nop()
	log.With("k", "v").Error(context.TODO(), "ignored")
}
