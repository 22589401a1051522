package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type lineFormat int

const (
	formatJSON lineFormat = iota
	formatKV
)

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// fields is one record flattened to dotted keys.
type fields map[string]any

func (f fields) setDefault(key string, val any) {
	if cur, ok := f[key]; !ok || cur == "" {
		f[key] = val
	}
}

// recordHandler turns slog records into flat lines: fixed keys first, the rest sorted.
type recordHandler struct {
	level  slog.Leveler
	out    *asyncWriter
	format lineFormat
	order  []string

	attrs  []slog.Attr
	prefix string
}

func newRecordHandler(level slog.Leveler, out *asyncWriter, format lineFormat, order []string) *recordHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	if len(order) == 0 {
		order = defaultKeyOrder
	}
	return &recordHandler{level: level, out: out, format: format, order: order}
}

func (h *recordHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *recordHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.out == nil {
		return errors.New("logger: writer not initialized")
	}
	f := make(fields, 16)
	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format(tsLayout)
	f["level"] = levelName(r.Level)
	if h.format == formatJSON {
		f["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		f.add(h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	TraceFrom(ctx).each(func(key string, val any) {
		if _, ok := f[key]; !ok {
			f[key] = val
		}
	})

	if rid, ok := f["rid"].(string); ok {
		if short := CompactRID(rid); short != rid {
			if h.format == formatJSON {
				f.setDefault("rid_full", rid)
			}
			f["rid"] = short
		}
	}
	event := r.Message
	if event == "" {
		event = "unknown"
	}
	f.setDefault("event", event)
	f.setDefault("component", CompApp)
	normalizeEnums(f)
	for k, v := range f {
		if v == nil || v == "" {
			delete(f, k)
		}
	}

	var line []byte
	if h.format == formatJSON {
		var err error
		if line, err = encodeJSON(f, h.order); err != nil {
			return err
		}
	} else {
		line = encodeKV(f, h.order)
	}
	return h.out.Write(append(line, '\n'))
}

func (h *recordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *recordHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = joinKey(h.prefix, name)
	return &next
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// add flattens groups into dotted keys and stores scalar values.
func (f fields) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := scalar(key, v); ok {
		f[k] = val
	}
}

func scalar(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return millisKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case time.Duration:
		return millisKey(key), RoundMS(x).Milliseconds(), true
	case int64, int, bool, float64:
		return key, x, true
	case string:
		return key, strings.TrimSpace(x), true
	case error:
		return key, x.Error(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// millisKey appends the _ms unit suffix unless the key already carries it.
func millisKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}
