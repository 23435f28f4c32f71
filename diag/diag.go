// Package diag is the process-wide structured event sink used by the tools.
// Init fans records out to a terminal handler and, optionally, a JSON log file
// truncated on every start. Close flushes and releases the file.
package diag

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	// Path of the JSON log file; empty disables it
	Path string

	// Debug lowers the level to debug
	Debug bool

	// Terminal receives the text handler output; nil means stdout
	Terminal io.Writer
}

var ErrNotInitialized = errors.New("diag: not initialized")

var (
	mu     sync.Mutex
	level  = new(slog.LevelVar)
	file   *os.File
	logger *slog.Logger
)

// Init replaces any previous sink.
func Init(opts Options) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := closeLocked(); err != nil {
		return nil, err
	}

	if opts.Debug {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	terminal := opts.Terminal
	if terminal == nil {
		terminal = os.Stdout
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(terminal, &slog.HandlerOptions{Level: level}),
	}

	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, err
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	logger = slog.New(slogmulti.Fanout(handlers...))
	return logger, nil
}

// Logger returns the sink, or slog.Default before Init.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func SetDebug(debug bool) {
	if debug {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return ErrNotInitialized
	}
	err := closeLocked()
	logger = nil
	return err
}

func closeLocked() error {
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}
