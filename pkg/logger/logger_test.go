package logger

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wonny/talos/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel zerolog.Level
	}{
		{"debug level", "debug", zerolog.DebugLevel},
		{"info level", "info", zerolog.InfoLevel},
		{"warn level", "warn", zerolog.WarnLevel},
		{"error level", "error", zerolog.ErrorLevel},
		{"unknown defaults to info", "verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(&config.Config{
				Env:       "development",
				LogLevel:  tt.level,
				LogFormat: "json",
			})
			if logger == nil {
				t.Fatal("Expected logger to be created")
			}
			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("Expected global level %v, got %v", tt.wantLevel, zerolog.GlobalLevel())
			}
		})
	}
}

func TestWithComponentAddsField(t *testing.T) {
	logger := NewNop().WithComponent("order_manager")

	// The derived logger must carry the component in its context
	var captured map[string]interface{}
	hooked := logger.Zerolog().Output(writerFunc(func(p []byte) (int, error) {
		json.Unmarshal(p, &captured)
		return len(p), nil
	}))
	hooked.Info().Msg("test")

	if captured["component"] != "order_manager" {
		t.Errorf("Expected component=order_manager, got %v", captured["component"])
	}
}

func TestWithFieldsChaining(t *testing.T) {
	// Derived loggers must not panic and must remain independent
	base := NewNop()
	derived := base.WithFields(map[string]interface{}{"a": 1, "b": "two"}).WithError(nil)

	derived.Debug("debug")
	derived.Info("info")
	derived.Warnf("warn %d", 1)
	base.Error("error")
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
