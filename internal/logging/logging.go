package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Options struct {
	// DEBUG, INFO, WARN, ERROR or TRACE. Anything else is INFO.
	Level string
	// Optional directory for an uncoloured copy of the console output.
	Dir string
	// Name prefixes the log file name.
	Name string

	NoColor bool
	Out     io.Writer
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "TRACE":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// FilePath builds the log file path for a session started at start.
func FilePath(dir, name string, start time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.log", name, start.UTC().Format("20060102_150405")))
}

// New builds the process logger. The returned close func flushes and closes
// the log file, if any.
func New(opts Options) (zerolog.Logger, func() error, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    opts.NoColor,
	}}

	closeFn := func() error { return nil }
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return zerolog.Nop(), closeFn, err
		}
		name := opts.Name
		if name == "" {
			name = "leviathan"
		}
		f, err := os.OpenFile(FilePath(opts.Dir, name, time.Now()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closeFn, err
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        f,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
		closeFn = f.Close
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()
	return logger, closeFn, nil
}
