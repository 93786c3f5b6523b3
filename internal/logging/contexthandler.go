package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes describing the live session, such as
// the loaded scenario and the path status. It is called once per record.
type ContextProvider func() []slog.Attr

// ContextHandler appends the provider's attributes to each record. An
// attribute the call site already set is not repeated, and empty string
// values are left out.
type ContextHandler struct {
	next     slog.Handler
	provider ContextProvider
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{next: next, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.next.Handle(ctx, r)
	}
	extra := h.provider()
	if len(extra) == 0 {
		return h.next.Handle(ctx, r)
	}

	present := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})
	for _, a := range extra {
		if present[a.Key] {
			continue
		}
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			continue
		}
		r.AddAttrs(a)
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{next: h.next.WithGroup(name), provider: h.provider}
}
