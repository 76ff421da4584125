// Package log carries a slog.Logger through context and formats
// records as Google Cloud structured logging JSON.
package log

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"
)

type ctxKey struct{}

// Handler is a slog.Handler that writes Google Cloud structured log
// entries as single JSON lines.
type Handler struct {
	out   io.Writer
	attrs []slog.Attr
}

func NewHandler(out io.Writer) *Handler {
	if out == nil {
		out = os.Stdout
	}
	return &Handler{out: out}
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	entry := map[string]any{
		"severity": severity(r.Level),
		"time":     time.Now().Format(time.RFC3339),
		"message":  r.Message,
	}
	for _, attr := range h.attrs {
		entry[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(attr slog.Attr) bool {
		entry[attr.Key] = attr.Value.Any()
		return true
	})

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	h.out.Write(jsonData)
	h.out.Write([]byte("\n"))
	return nil
}

func (h *Handler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	copy(merged[len(h.attrs):], attrs)
	return &Handler{out: h.out, attrs: merged}
}

// WithGroup returns the same handler, grouping is not implemented.
func (h *Handler) WithGroup(_ string) slog.Handler {
	return h
}

// severity maps slog levels to Cloud Logging severity names.
func severity(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.New(NewHandler(os.Stdout))
}
