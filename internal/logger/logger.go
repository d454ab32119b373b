// Package logger builds the daemon's slog logger: console output plus an
// optional date-stamped log file, fanned out with slog-multi.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

const filePrefix = "reportd"

type config struct {
	debug   bool
	format  string
	quiet   bool
	toFile  bool
	logDir  string
	console io.Writer
	now     func() time.Time
}

type Option func(*config)

// WithDebug lowers the level to debug.
func WithDebug() Option {
	return func(c *config) {
		c.debug = true
	}
}

// WithFormat selects "text" or "json" output.
func WithFormat(format string) Option {
	return func(c *config) {
		c.format = format
	}
}

// WithQuiet disables console output.
func WithQuiet() Option {
	return func(c *config) {
		c.quiet = true
	}
}

// WithLogDir enables the log file; an empty dir means the working directory.
func WithLogDir(dir string) Option {
	return func(c *config) {
		c.toFile = true
		c.logDir = dir
	}
}

func WithConsole(w io.Writer) Option {
	return func(c *config) {
		c.console = w
	}
}

func withClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

type Logger struct {
	*slog.Logger
	file *os.File
}

func New(opts ...Option) (*Logger, error) {
	cfg := &config{
		format:  "text",
		console: os.Stderr,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !cfg.quiet {
		handlers = append(handlers, newHandler(cfg.console, cfg.format, handlerOpts))
	}

	l := &Logger{}
	if cfg.toFile {
		dir := cfg.logDir
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}

		name := fmt.Sprintf("%s_%s.log", filePrefix, cfg.now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, &guardedHandler{handler: newHandler(f, cfg.format, handlerOpts)})
	}

	l.Logger = slog.New(slogmulti.Fanout(handlers...))
	return l, nil
}

// FilePath is empty when file logging is off.
func (l *Logger) FilePath() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// guardedHandler serialises writes to the log file.
type guardedHandler struct {
	handler slog.Handler
	mu      sync.Mutex
}

func (g *guardedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return g.handler.Enabled(ctx, level)
}

func (g *guardedHandler) Handle(ctx context.Context, record slog.Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handler.Handle(ctx, record)
}

func (g *guardedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &guardedHandler{handler: g.handler.WithAttrs(attrs)}
}

func (g *guardedHandler) WithGroup(name string) slog.Handler {
	return &guardedHandler{handler: g.handler.WithGroup(name)}
}
