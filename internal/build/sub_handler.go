package build

import (
	"context"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// subHandler is a btclog.Handler view over a handlerSet. It applies its
// subsystem tag (and any prefix, attrs, or groups) at dispatch time, so a
// logger built on it observes handler replacement in the underlying set.
type subHandler struct {
	set    *handlerSet
	tag    string
	prefix string
	attrs  []slog.Attr
	groups []string
}

// Enabled reports whether the handler handles records at the given level.
//
// NOTE: this is part of the slog.Handler interface.
func (s *subHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range s.set.snapshot() {
		if !handler.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

// Handle dispatches the record to every handler currently installed in the
// set, tagged with this view's subsystem.
//
// NOTE: this is part of the slog.Handler interface.
func (s *subHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range s.set.snapshot() {
		if err := s.decorate(handler).Handle(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

// decorate applies the view's tag, prefix, attrs and groups to a concrete
// handler from the set.
func (s *subHandler) decorate(handler btclogv2.Handler) slog.Handler {
	tagged := handler.SubSystem(s.tag)
	if s.prefix != "" {
		tagged = tagged.WithPrefix(s.prefix)
	}

	var h slog.Handler = tagged
	if len(s.attrs) > 0 {
		h = h.WithAttrs(s.attrs)
	}
	for _, group := range s.groups {
		h = h.WithGroup(group)
	}

	return h
}

// WithAttrs returns a new Handler whose attributes consist of both the
// receiver's attributes and the arguments.
//
// NOTE: this is part of the slog.Handler interface.
func (s *subHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *s
	derived.attrs = append(append([]slog.Attr{}, s.attrs...), attrs...)

	return &derived
}

// WithGroup returns a new Handler with the given group appended to the
// receiver's existing groups.
//
// NOTE: this is part of the slog.Handler interface.
func (s *subHandler) WithGroup(name string) slog.Handler {
	derived := *s
	derived.groups = append(append([]string{}, s.groups...), name)

	return &derived
}

// SubSystem creates a new Handler with the given sub-system tag.
//
// NOTE: this is part of the btclog.Handler interface.
func (s *subHandler) SubSystem(tag string) btclogv2.Handler {
	derived := *s
	derived.tag = tag

	return &derived
}

// SetLevel changes the logging level on all underlying handlers.
//
// NOTE: this is part of the btclog.Handler interface.
func (s *subHandler) SetLevel(level btclog.Level) {
	s.set.setLevel(level)
}

// Level returns the current logging level of the underlying set.
//
// NOTE: this is part of the btclog.Handler interface.
func (s *subHandler) Level() btclog.Level {
	s.set.mu.RLock()
	defer s.set.mu.RUnlock()

	return s.set.level
}

// WithPrefix returns a copy of the Handler but with the given string
// prefixed to each log message.
//
// NOTE: this is part of the btclog.Handler interface.
func (s *subHandler) WithPrefix(prefix string) btclogv2.Handler {
	derived := *s
	derived.prefix = prefix

	return &derived
}

// Ensure subHandler implements btclog.Handler at compile time.
var _ btclogv2.Handler = (*subHandler)(nil)
