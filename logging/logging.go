package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	clog "github.com/charmbracelet/log"
)

// Options configures New
type Options struct {
	// Level is one of debug, info, warn, error
	Level string
	// Dir receives goKeySwap.log; empty disables the log file
	Dir string
	// Console receives the same output; nil means stderr
	Console io.Writer
}

// Logger is the application logger and the file it writes to
type Logger struct {
	*clog.Logger
	file *os.File
}

// New creates the logger. The log file is truncated on every start.
func New(opts Options) (*Logger, error) {
	level, err := clog.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
	}

	var console io.Writer = os.Stderr
	if opts.Console != nil {
		console = opts.Console
	}

	out := console
	var file *os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(filepath.Join(opts.Dir, "goKeySwap.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(console, file)
	}

	l := clog.NewWithOptions(out, clog.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
		Level:           level,
	})
	return &Logger{Logger: l, file: file}, nil
}

// SetLevelString changes the level from a config value
func (l *Logger) SetLevelString(s string) error {
	level, err := clog.ParseLevel(s)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	return nil
}

// Path returns the log file path, or "" when logging only to the console
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
