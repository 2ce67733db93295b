package logger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// bridge adapts slog onto the zerolog backend so packages written
// against *slog.Logger share one sink and one level policy. Groups are
// flattened into dot-separated key prefixes.
type bridge struct {
	zl     *zerolog.Logger
	prefix string
	attrs  []slog.Attr
}

func NewSlog(zl *zerolog.Logger) *slog.Logger {
	return slog.New(&bridge{zl: zl})
}

func slogToZerolog(l slog.Level) zerolog.Level {
	switch {
	case l <= slog.LevelDebug:
		return zerolog.DebugLevel
	case l < slog.LevelWarn:
		return zerolog.InfoLevel
	case l < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (b *bridge) Enabled(_ context.Context, l slog.Level) bool {
	return slogToZerolog(l) >= zerolog.GlobalLevel()
}

func (b *bridge) Handle(ctx context.Context, r slog.Record) error {
	ev := FromContext(ctx, b.zl).WithLevel(slogToZerolog(r.Level))

	// stored attrs were prefixed when attached; only record attrs take
	// the current group prefix
	for _, a := range b.attrs {
		b.emit(ev, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		b.emit(ev, b.prefix, a)
		return true
	})

	ev.Msg(r.Message)
	return nil
}

func (b *bridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *b
	cp.attrs = make([]slog.Attr, 0, len(b.attrs)+len(attrs))
	cp.attrs = append(cp.attrs, b.attrs...)
	for _, a := range attrs {
		a.Key = joinKey(b.prefix, a.Key)
		cp.attrs = append(cp.attrs, a)
	}
	return &cp
}

func (b *bridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}
	cp := *b
	cp.prefix = joinKey(b.prefix, name)
	cp.attrs = append([]slog.Attr(nil), b.attrs...)
	return &cp
}

func (b *bridge) emit(ev *zerolog.Event, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := joinKey(prefix, a.Key)

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			b.emit(ev, key, ga)
		}
	case slog.KindString:
		ev.Str(key, a.Value.String())
	case slog.KindInt64:
		ev.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		ev.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		ev.Float64(key, a.Value.Float64())
	case slog.KindBool:
		ev.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		ev.Dur(key, a.Value.Duration())
	case slog.KindTime:
		ev.Time(key, a.Value.Time())
	default:
		ev.Interface(key, a.Value.Any())
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return strings.Join([]string{prefix, key}, ".")
}
