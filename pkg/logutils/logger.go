// Package logutils builds the process logger.
package logutils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Stderr selects human readable output on stderr instead of a log file.
const Stderr = "-"

// New returns the process logger and a func releasing its output.
//
// With a file path, JSON lines are appended to it. An empty path or Stderr
// writes console output to stderr so stdout stays free for command output;
// colors are used only when stderr is a terminal.
func New(level string, file string) (zerolog.Logger, func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.Nop(), func() {}, fmt.Errorf("invalid log level %q: want trace, debug, info, warn or error", level)
	}

	out, closeOut, err := open(file)
	if err != nil {
		return zerolog.Nop(), func() {}, err
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), closeOut, nil
}

func open(file string) (io.Writer, func(), error) {
	if file == "" || file == Stderr {
		return zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
			NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
		}, func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
