package logger

import "testing"

func TestNewLoggerSelectsBackend(t *testing.T) {
	l, err := NewLogger("info", "json", "stdout", "")
	if err != nil {
		t.Fatalf("NewLogger json: %v", err)
	}
	if _, ok := l.(*ZapLogger); !ok {
		t.Fatalf("expected zap backend for json format, got %T", l)
	}

	l, err = NewLogger("info", "text", "stdout", "")
	if err != nil {
		t.Fatalf("NewLogger text: %v", err)
	}
	if _, ok := l.(*LogrusLogger); !ok {
		t.Fatalf("expected logrus backend for text format, got %T", l)
	}
}

func TestLogrusWithFieldDerivesNewInstance(t *testing.T) {
	base, err := NewLogrusLogger("info", "text", "stdout", "")
	if err != nil {
		t.Fatalf("NewLogrusLogger: %v", err)
	}

	derived := base.WithField("move_id", "mv-1")
	d, ok := derived.(*LogrusLogger)
	if !ok {
		t.Fatalf("expected *LogrusLogger, got %T", derived)
	}
	if d == base {
		t.Fatalf("expected derived logger instance")
	}
	if got := d.entry.Data["move_id"]; got != "mv-1" {
		t.Fatalf("expected field carried on derived entry, got %v", got)
	}
	if len(base.entry.Data) != 0 {
		t.Fatalf("expected base logger unchanged, got %v", base.entry.Data)
	}
}
