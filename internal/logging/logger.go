package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
	// BufferSize is the number of entries kept for /api/logs/stream.
	BufferSize int `toml:"buffer_size"`
}

// state is the process-wide logging setup. Module loggers keep their
// LevelVar across Initialize, so loggers handed out early follow the
// configured level.
type state struct {
	mu       sync.RWMutex
	cfg      Config
	ready    bool
	root     slog.LevelVar
	levels   map[string]*slog.LevelVar
	loggers  map[string]*slog.Logger
	buffer   *RingBuffer
	callback LogCallback
}

func newState() *state {
	return &state{
		levels:  make(map[string]*slog.LevelVar),
		loggers: make(map[string]*slog.Logger),
	}
}

var std = newState()

// Initialize applies config to the default logger and every module logger.
func Initialize(config Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.cfg = config
	std.ready = true

	size := config.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	std.buffer = NewRingBuffer(size)

	std.root.Set(std.levelFor(""))

	// Rebuild handlers so loggers created before Initialize pick up the
	// configured format and the buffer.
	for module, lv := range std.levels {
		lv.Set(std.levelFor(module))
		std.loggers[module] = slog.New(newHandler(config.Format, lv)).With("module", module)
	}

	slog.SetDefault(slog.New(newHandler(config.Format, &std.root)))
}

// levelFor resolves the configured level of module, or the global level
// for "". Caller holds mu.
func (s *state) levelFor(module string) slog.Level {
	level := slog.LevelInfo
	if !s.ready {
		return level
	}
	if l, ok := parseLevel(s.cfg.Level); ok {
		level = l
	}
	if module != "" {
		if l, ok := parseLevel(s.cfg.Modules[module]); ok {
			level = l
		}
	}
	return level
}

// GetBuffer returns the log ring buffer, nil before Initialize.
func GetBuffer() *RingBuffer {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.buffer
}

// SetLogCallback sets a function called with every buffered entry. main
// uses it to publish entries on the event bus.
func SetLogCallback(callback LogCallback) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.callback = callback
}

// GetLogger returns the logger of module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	logger, ok := std.loggers[module]
	std.mu.RUnlock()
	if ok {
		return logger
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if logger, ok := std.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(std.levelFor(module))

	format := "text"
	if std.ready {
		format = std.cfg.Format
	}

	logger = slog.New(newHandler(format, lv)).With("module", module)
	std.loggers[module] = logger
	std.levels[module] = lv
	return logger
}

// ServerLogger returns the logger of module scoped to one game server.
func ServerLogger(module, serverID string) *slog.Logger {
	return GetLogger(module).With("server_id", serverID)
}

// newHandler builds the output chain: stdout when usable, the journal when
// running under systemd, and always the ring buffer.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	handlers := make([]slog.Handler, 0, 3)
	if stdoutUsable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// stdoutUsable reports whether stdout is a terminal, pipe, socket or file.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode.IsRegular() || mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0
}

// parseLevel converts a level name to a slog.Level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
