package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Options configures Setup.
type Options struct {
	// Stderr receives human-readable records. Defaults to os.Stderr.
	Stderr io.Writer

	Verbose bool

	// File, when set, receives JSON records at debug level. The file is
	// appended to so earlier boot runs are kept.
	File string
}

// Setup installs the default logger and returns a function that closes the
// log file, if any.
func Setup(opts Options) (func() error, error) {
	w := opts.Stderr
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	var h slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})

	closer := func() error { return nil }
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		jsonH := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
		h = NewMultiHandler(h, jsonH)
		closer = f.Close
	}

	slog.SetDefault(slog.New(h))
	return closer, nil
}
