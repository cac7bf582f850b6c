// Package applog configures the global zerolog logger.
package applog

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const logFile = "fmgen.log"

// DebugEnv forces debug-level logging when set to a non-empty value.
const DebugEnv = "FLATPAK_BUILDER_DEBUG"

// Init wires the global logger to a rotating file under dir plus any
// extra writers. Level and format come from the loaded settings.
func Init(dir, level, format string, extra ...io.Writer) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	writers := []io.Writer{&lumberjack.Logger{
		Filename:   filepath.Join(dir, logFile),
		MaxSize:    1,
		MaxBackups: 2,
	}}
	for _, w := range extra {
		if format == "text" {
			w = zerolog.ConsoleWriter{Out: w}
		}
		writers = append(writers, w)
	}

	zerolog.SetGlobalLevel(parseLevel(level))
	log.Logger = log.Output(io.MultiWriter(writers...)).
		With().Timestamp().Logger()

	return nil
}

func parseLevel(level string) zerolog.Level {
	if os.Getenv(DebugEnv) != "" {
		return zerolog.DebugLevel
	}
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
