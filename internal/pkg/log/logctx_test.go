package log

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// Тесты меняют slog.Default(), поэтому не используют t.Parallel().

func newSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordHandler struct {
	attrs []slog.Attr
	last  map[string]any
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.last = map[string]any{}
	for _, a := range h.attrs {
		h.last[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		h.last[a.Key] = a.Value.Any()
		return true
	})
	return nil
}

func (h *recordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordHandler{attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *recordHandler) WithGroup(string) slog.Handler { return h }

func TestFrom_EmptyContext_ReturnsDefault(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := newSilent()
	slog.SetDefault(def)

	require.Equal(t, def, From(context.Background()))
}

func TestFrom_EmptyContext_PrefersFallback(t *testing.T) {
	fb := newSilent()
	require.Equal(t, fb, From(context.Background(), nil, fb))
}

func TestFrom_ContextLoggerWinsOverFallback(t *testing.T) {
	l := newSilent()
	ctx := Into(context.Background(), l)

	require.Equal(t, l, From(ctx, newSilent()))
}

func TestFrom_NilLoggerInContext_FallsBack(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := newSilent()
	slog.SetDefault(def)

	var nilLogger *slog.Logger
	ctx := context.WithValue(context.Background(), ctxKey{}, nilLogger)
	require.Equal(t, def, From(ctx))

	ctx = context.WithValue(context.Background(), ctxKey{}, "not-a-logger")
	require.Equal(t, def, From(ctx))
}

func TestWith_EnrichesAndStoresLogger(t *testing.T) {
	base := slog.New(&recordHandler{})

	ctx := Into(context.Background(), base)
	ctx, l := With(ctx, slog.String("request_id", "rid-1"))

	require.Equal(t, l, From(ctx))

	From(ctx).Info("probe", slog.Int("n", 1))

	// With создаёт дочерний обработчик с базовыми атрибутами.
	rh, ok := l.Handler().(*recordHandler)
	require.True(t, ok)
	require.Equal(t, "rid-1", rh.last["request_id"])
	require.EqualValues(t, 1, rh.last["n"])
}
