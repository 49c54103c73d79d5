package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHelpersAreSilentWithoutLogger(t *testing.T) {
	SetLogger(nil)
	Debug("nothing")
	Info("nothing", String("k", "v"))
	Warn("nothing", ErrorField(errors.New("boom")))
	Error("nothing")
	Sync()
}

func TestHelpersWriteToInstalledLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Info("peer observed", String("address", "192.168.1.20"), Int("port", 40000))
	Warn("send failed", ErrorField(errors.New("unreachable")))

	if logs.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", logs.Len())
	}
	first := logs.All()[0]
	if first.Message != "peer observed" {
		t.Errorf("unexpected message %q", first.Message)
	}
	if got := first.ContextMap()["port"]; got != int64(40000) {
		t.Errorf("port field = %v", got)
	}
	if logs.All()[1].Level != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %v", logs.All()[1].Level)
	}
}

func TestLevelParsing(t *testing.T) {
	tests := []struct {
		in   LogLevel
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := tt.in.zapLevel(); got != tt.want {
			t.Errorf("zapLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "kristine.log")
	if err := InitLogger(Config{Level: InfoLevel, OutputPath: path, MaxSize: 1}); err != nil {
		t.Fatal(err)
	}
	defer SetLogger(nil)
	Info("written")
	Sync()
}
