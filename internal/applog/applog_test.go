package applog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWritesToFileAndExtraWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	if err := Init(dir, "info", "json", &buf); err != nil {
		t.Fatalf("init: %v", err)
	}
	log.Info().Str("op", "generate").Msg("manifest written")

	raw, err := os.ReadFile(filepath.Join(dir, logFile))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "manifest written") {
		t.Fatalf("log file missing message: %s", raw)
	}
	if !strings.Contains(buf.String(), `"op":"generate"`) {
		t.Fatalf("extra writer missing field: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDebugEnvOverride(t *testing.T) {
	t.Setenv(DebugEnv, "1")
	if got := parseLevel("error"); got != zerolog.DebugLevel {
		t.Fatalf("env override ignored, got %v", got)
	}
}
