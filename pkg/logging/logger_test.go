package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sharesphere/spherecore/pkg/config"
)

func newTestLogger(buf *bytes.Buffer) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:    "timestamp",
		LevelKey:   "level",
		MessageKey: "message",
	}
	core := zapcore.NewCore(NewScalyrEncoder(encoderConfig), zapcore.AddSync(buf), zapcore.InfoLevel)
	return zap.New(core)
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var logObj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logObj); err != nil {
		t.Fatalf("Failed to parse JSON %q: %v", buf.String(), err)
	}
	return logObj
}

func TestScalyrEncoder(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Info("vote cast",
		zap.String("order", "hot"),
		zap.Int64("post_id", 42),
		zap.Bool("pinned", true),
		zap.Duration("took", 1500*time.Millisecond),
		zap.Error(errors.New("boom")),
	)

	logObj := decodeLine(t, &buf)

	tests := []struct {
		key  string
		want interface{}
	}{
		{"message", "vote cast"},
		{"level", "info"},
		{"order", "hot"},
		{"post_id", float64(42)},
		{"pinned", true},
		{"took", "1.5s"},
		{"error", "boom"},
	}
	for _, tt := range tests {
		if logObj[tt.key] != tt.want {
			t.Errorf("field %q = %v, want %v", tt.key, logObj[tt.key], tt.want)
		}
	}
	if _, ok := logObj["timestamp"]; !ok {
		t.Error("Expected 'timestamp' field in log output")
	}
}

func TestScalyrEncoder_WithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).With(zap.String("component", "votes"), Actor(7))

	logger.Info("first")
	first := decodeLine(t, &buf)
	if first["component"] != "votes" || first["actor_id"] != float64(7) {
		t.Errorf("context fields missing: %v", first)
	}

	// Children must not leak fields into their parent.
	buf.Reset()
	child := logger.With(Sphere(3))
	child.Info("child")
	if obj := decodeLine(t, &buf); obj["sphere_id"] != float64(3) {
		t.Errorf("child missing sphere_id: %v", obj)
	}
	buf.Reset()
	logger.Info("parent")
	if obj := decodeLine(t, &buf); obj["sphere_id"] != nil {
		t.Errorf("parent picked up child field: %v", obj)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"DEBUG", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"WARNING", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitLogger(t *testing.T) {
	old := Logger
	defer func() { Logger = old }()

	for _, cfg := range []config.LoggingConfig{
		{Level: "INFO", Format: "json", ScalyrFormat: true},
		{Level: "DEBUG", Format: "json"},
		{Level: "DEBUG", Format: "text"},
	} {
		if err := InitLogger(&cfg); err != nil {
			t.Fatalf("InitLogger(%+v) error: %v", cfg, err)
		}
		if GetLogger() == nil {
			t.Fatalf("InitLogger(%+v) left a nil logger", cfg)
		}
	}
}
