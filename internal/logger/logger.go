package logger

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// Config controls level and output format of the process logger.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	// File, when set, sends JSON lines to a rotating file instead.
	File string `yaml:"file,omitempty"`
}

// New builds the process logger. Text format writes to a console writer,
// anything else emits JSON lines on stdout.
func New(cfg Config) *log.Logger {
	level := strings.ToLower(cfg.Level)
	if level == "" {
		level = "info"
	}
	l := &log.Logger{
		Level:      log.ParseLevel(level),
		TimeFormat: "15:04:05",
	}
	switch {
	case cfg.File != "":
		l.Writer = &log.FileWriter{
			Filename:     cfg.File,
			MaxSize:      10 << 20,
			MaxBackups:   3,
			EnsureFolder: true,
		}
	case cfg.Format == "text" || cfg.Format == "console":
		l.Writer = &log.ConsoleWriter{Writer: os.Stderr, ColorOutput: true, QuoteString: true}
	default:
		l.Writer = log.IOWriter{Writer: os.Stdout}
	}
	return l
}

// Nop returns a logger that drops everything.
func Nop() *log.Logger {
	return &log.Logger{Writer: log.IOWriter{Writer: io.Discard}}
}
