package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/scrape-fleet/internal/config"
)

// SetupLogger configures the event-line slog logger with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	h := NewEventHandler(os.Stdout, cfg.SlogLevel())
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}

// eventHandler renders each record as a single line of key=value pairs
// led by event=<message>. Nil values render as null, booleans as
// true/false; values containing whitespace are quoted. The format is
// grep-friendly and stable, one event per line.
type eventHandler struct {
	level  slog.Leveler
	mu     *sync.Mutex
	w      io.Writer
	prefix string
	groups []string
}

// NewEventHandler builds the handler writing to w at the given level.
func NewEventHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return &eventHandler{level: level, mu: &sync.Mutex{}, w: w}
}

func (h *eventHandler) Enabled(_ context.Context, l slog.Level) bool {
	min := slog.LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return l >= min
}

func (h *eventHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = append(buf, "event="...)
	buf = append(buf, quoteIfNeeded(r.Message)...)
	buf = append(buf, h.prefix...)
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, prefix, a)
		return true
	})
	buf = append(buf, '\n')
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *eventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	prefix := strings.Join(h.groups, ".")
	buf := []byte(h.prefix)
	for _, a := range attrs {
		buf = appendAttr(buf, prefix, a)
	}
	h2.prefix = string(buf)
	return &h2
}

func (h *eventHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string{}, h.groups...), name)
	return &h2
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		gp := prefix
		if a.Key != "" {
			if gp != "" {
				gp += "."
			}
			gp += a.Key
		}
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, gp, ga)
		}
		return buf
	}
	if a.Key == "" {
		return buf
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	buf = append(buf, ' ')
	buf = append(buf, key...)
	buf = append(buf, '=')
	buf = append(buf, formatValue(a.Value)...)
	return buf
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return quoteIfNeeded(v.String())
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return formatAny(v.Any())
	}
}

func formatAny(a any) string {
	if a == nil {
		return "null"
	}
	if err, ok := a.(error); ok {
		return quoteIfNeeded(err.Error())
	}
	rv := reflect.ValueOf(a)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "null"
		}
		return formatAny(rv.Elem().Interface())
	}
	return quoteIfNeeded(fmt.Sprint(a))
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\n\r\"=") {
		return strconv.Quote(s)
	}
	return s
}
