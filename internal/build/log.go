// Package build holds process-wide logging plumbing shared by every lethe
// subsystem. Each package declares its own subsystem logger in a log.go file
// via NewSubLogger; the daemon reconfigures the shared handler set once at
// startup with InitLogging.
package build

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// DefaultLogFilename is the log file name used when file logging is enabled
// and no custom name is provided.
const DefaultLogFilename = "lethed.log"

// rootSet is the process-wide handler set. Subsystem loggers created before
// InitLogging runs still pick up the reconfigured handlers because they hold
// views into this set rather than copies of it.
var rootSet = newHandlerSet(btclogv2.NewDefaultHandler(os.Stderr))

// NewSubLogger returns a structured logger tagged with the given subsystem.
// The returned logger shares the process-wide handler set, so a later call
// to InitLogging or SetLogLevel affects it as well.
func NewSubLogger(tag string) btclogv2.Logger {
	return btclogv2.NewSLogger(rootSet.subSystem(tag))
}

// InitLogging reconfigures the shared handler set. Records always go to
// stderr; when logDir is non-empty they are additionally appended to
// lethed.log inside it. The level string follows btclog conventions
// (trace, debug, info, warn, error, critical).
func InitLogging(logDir, level string) error {
	handlers := []btclogv2.Handler{
		btclogv2.NewDefaultHandler(os.Stderr),
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}

		logPath := filepath.Join(logDir, DefaultLogFilename)
		f, err := os.OpenFile(
			logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600,
		)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}

		handlers = append(handlers, btclogv2.NewDefaultHandler(
			f, btclogv2.WithNoTimestamp(),
		))
	}

	rootSet.setHandlers(handlers)

	if level != "" {
		if err := SetLogLevel(level); err != nil {
			return err
		}
	}

	return nil
}

// SetLogLevel changes the level on every handler in the shared set.
func SetLogLevel(level string) error {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	rootSet.setLevel(lvl)

	return nil
}

// handlerSet fans records out to a mutable set of underlying handlers.
// Subsystem views created from it observe handler replacement, which is what
// lets package-level loggers be declared before the daemon configures
// logging.
type handlerSet struct {
	mu       sync.RWMutex
	handlers []btclogv2.Handler
	level    btclog.Level
}

func newHandlerSet(handlers ...btclogv2.Handler) *handlerSet {
	h := &handlerSet{
		handlers: handlers,
		level:    btclog.LevelInfo,
	}
	h.setLevel(h.level)

	return h
}

// snapshot returns the current handler slice. Callers must not mutate it.
func (h *handlerSet) snapshot() []btclogv2.Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.handlers
}

func (h *handlerSet) setHandlers(handlers []btclogv2.Handler) {
	h.mu.Lock()
	level := h.level
	h.handlers = handlers
	h.mu.Unlock()

	for _, handler := range handlers {
		handler.SetLevel(level)
	}
}

func (h *handlerSet) setLevel(level btclog.Level) {
	h.mu.Lock()
	h.level = level
	handlers := h.handlers
	h.mu.Unlock()

	for _, handler := range handlers {
		handler.SetLevel(level)
	}
}

// subSystem returns a handler view that tags records with the given
// subsystem while delegating to whatever handlers are currently installed.
func (h *handlerSet) subSystem(tag string) btclogv2.Handler {
	return &subHandler{set: h, tag: tag}
}
