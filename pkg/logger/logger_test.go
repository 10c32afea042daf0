package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevelOf(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := levelOf(in); got != want {
			t.Errorf("levelOf(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithContext_Fields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json"})
	saved := root
	root = zerolog.New(&buf)
	defer func() { root = saved }()

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, ActorKey, "token:ab12")
	WithContext(ctx).Info().Msg("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if line["request_id"] != "req-1" || line["actor"] != "token:ab12" {
		t.Errorf("line = %v", line)
	}
}
