package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hpungsan/grimoire/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(Options{Level: "debug", Output: &buf}), "repository")

	log.Debug().Str("operation", "create").Msg("done")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["service"] != "grimoire" {
		t.Errorf("service = %v, want grimoire", entry["service"])
	}
	if entry["component"] != "repository" {
		t.Errorf("component = %v, want repository", entry["component"])
	}
	if entry["operation"] != "create" {
		t.Errorf("operation = %v, want create", entry["operation"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Output: &buf})

	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}

	log.Warn().Msg("shown")
	if buf.Len() == 0 {
		t.Error("warn should be written at warn level")
	}
}

func TestFromConfig(t *testing.T) {
	opts := FromConfig(&config.Config{LogLevel: "error", LogPretty: true})
	if opts.Level != "error" || !opts.Pretty || opts.Output == nil {
		t.Errorf("FromConfig() = %+v", opts)
	}
}
