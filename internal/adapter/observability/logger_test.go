package observability

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fairyhunter13/scrape-fleet/internal/config"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"})
	if lg == nil {
		t.Fatalf("nil logger")
	}
	lg2 := SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc", LogLevel: "ERROR"})
	if lg2 == nil {
		t.Fatalf("nil logger prod")
	}
}

func TestEventHandler_Line(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(NewEventHandler(&buf, slog.LevelInfo))

	lg.Info("task_start",
		slog.Int64("item_id", 3895922522),
		slog.String("proxy", "10.0.0.1:8080:u:p"),
		slog.Int("attempt", 1))

	got := buf.String()
	want := "event=task_start item_id=3895922522 proxy=10.0.0.1:8080:u:p attempt=1\n"
	if got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}

func TestEventHandler_ValueRendering(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"bool true", slog.Bool("success", true), "success=true"},
		{"bool false", slog.Bool("rotate", false), "rotate=false"},
		{"nil any", slog.Any("price", nil), "price=null"},
		{"typed nil pointer", slog.Any("views", (*int)(nil)), "views=null"},
		{"pointer deref", slog.Any("views", intPtr(42)), "views=42"},
		{"error value", slog.Any("error", errors.New("connect refused")), `error="connect refused"`},
		{"spaced string", slog.String("reason", "no tasks left"), `reason="no tasks left"`},
		{"empty string", slog.String("state", ""), `state=""`},
		{"equals sign", slog.String("q", "a=b"), `q="a=b"`},
		{"duration", slog.Duration("elapsed", 1500*time.Millisecond), "elapsed=1.5s"},
		{"float", slog.Float64("ratio", 0.25), "ratio=0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			lg := slog.New(NewEventHandler(&buf, slog.LevelInfo))
			lg.Info("probe", tt.attr)
			got := strings.TrimSuffix(buf.String(), "\n")
			if got != "event=probe "+tt.want {
				t.Errorf("line = %q, want suffix %q", got, tt.want)
			}
		})
	}
}

func TestEventHandler_WithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(NewEventHandler(&buf, slog.LevelInfo)).
		With(slog.String("worker_id", "fleet:h:1:0"))

	lg.WithGroup("db").Info("heartbeat_failed", slog.String("op", "worker.heartbeat"))

	got := buf.String()
	want := "event=heartbeat_failed worker_id=fleet:h:1:0 db.op=worker.heartbeat\n"
	if got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}

func TestEventHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(NewEventHandler(&buf, slog.LevelInfo))
	lg.Debug("worker_detect_state")
	if buf.Len() != 0 {
		t.Errorf("debug line emitted at info level: %q", buf.String())
	}
	lg.Warn("heartbeat_failed")
	if !strings.HasPrefix(buf.String(), "event=heartbeat_failed") {
		t.Errorf("warn line missing: %q", buf.String())
	}
}

func TestEventHandler_QuotedMessage(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(NewEventHandler(&buf, slog.LevelInfo))
	lg.Info("two words")
	if got := buf.String(); got != "event=\"two words\"\n" {
		t.Errorf("line = %q", got)
	}
}

func intPtr(v int) *int { return &v }
