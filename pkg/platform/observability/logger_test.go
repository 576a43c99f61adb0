package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	mu    *sync.Mutex
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		mu:    &sync.Mutex{},
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := *h
	newH.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &newH
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *testHandler) records() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (h *testHandler) lastRecord() map[string]any {
	recs := h.records()
	if len(recs) == 0 {
		return nil
	}
	return recs[len(recs)-1]
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", "debug", slog.LevelDebug, false},
		{"info", "info", slog.LevelInfo, false},
		{"empty defaults to info", "", slog.LevelInfo, false},
		{"warn", "warn", slog.LevelWarn, false},
		{"warning alias", "warning", slog.LevelWarn, false},
		{"error", "error", slog.LevelError, false},
		{"mixed case", "DeBuG", slog.LevelDebug, false},
		{"padded", "  error ", slog.LevelError, false},
		{"unknown", "verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown log level")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("text format filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _ := NewLogger(&buf, slog.LevelWarn, FormatText)

		logger.Info("hidden")
		logger.Warn("shown", slog.String("k", "v"))

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "msg=shown")
		assert.Contains(t, out, "k=v")
		assert.Contains(t, out, "time=")
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _ := NewLogger(&buf, slog.LevelInfo, FormatJSON)

		logger.Info("hello", slog.Int("n", 3))

		var m map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
		assert.Equal(t, "hello", m["msg"])
		assert.Equal(t, "INFO", m["level"])
		assert.Equal(t, float64(3), m["n"])
	})

	t.Run("unknown format falls back to text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _ := NewLogger(&buf, slog.LevelInfo, "xml")
		logger.Info("plain")
		assert.True(t, strings.Contains(buf.String(), "msg=plain"))
	})

	t.Run("level var changes level at runtime", func(t *testing.T) {
		var buf bytes.Buffer
		logger, lv := NewLogger(&buf, slog.LevelInfo, FormatText)

		logger.Debug("before")
		lv.Set(slog.LevelDebug)
		logger.Debug("after")

		out := buf.String()
		assert.NotContains(t, out, "before")
		assert.Contains(t, out, "after")
	})
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds run_id and component", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), "run-123", "perception")
		enriched.Info("test message")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "run-123", record["run_id"])
		assert.Equal(t, "perception", record["component"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "run-123", "io"))
	})
}

func TestLogHelpers(t *testing.T) {
	tests := []struct {
		name  string
		log   func(*slog.Logger)
		level string
		msg   string
		check func(*testing.T, map[string]any)
	}{
		{
			name:  "pipeline start",
			log:   func(l *slog.Logger) { LogPipelineStart(l, "run-1", 50*time.Millisecond, 4) },
			level: "INFO",
			msg:   "pipeline starting",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, "run-1", r["run_id"])
				assert.Equal(t, float64(4), r["workers"])
			},
		},
		{
			name:  "pipeline stop",
			log:   func(l *slog.Logger) { LogPipelineStop(l, "run-1", 12, 250.5) },
			level: "INFO",
			msg:   "pipeline stopped",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, float64(12), r["processed_samples"])
				assert.Equal(t, 250.5, r["duration_ms"])
			},
		},
		{
			name:  "overrun",
			log:   func(l *slog.Logger) { LogOverrun(l, 7, 3*time.Millisecond) },
			level: "WARN",
			msg:   "scheduler overrun",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, float64(7), r["tick"])
				assert.Equal(t, 3.0, r["late_ms"])
			},
		},
		{
			name:  "panic",
			log:   func(l *slog.Logger) { LogPanic(l, "pool", "boom", "stack") },
			level: "ERROR",
			msg:   "recovered panic",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, "pool", r["component"])
				assert.Equal(t, "boom", r["panic"])
			},
		},
		{
			name:  "transform error",
			log:   func(l *slog.Logger) { LogTransformError(l, "imu:x", errors.New("bad number")) },
			level: "WARN",
			msg:   "transform failed",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, "imu:x", r["payload"])
				assert.Equal(t, "bad number", r["error"])
			},
		},
		{
			name:  "actuator command",
			log:   func(l *slog.Logger) { LogActuatorCommand(l, "0.500000") },
			level: "INFO",
			msg:   "actuator command",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, "0.500000", r["effort"])
			},
		},
		{
			name:  "command dropped",
			log:   func(l *slog.Logger) { LogCommandDropped(l, "0.5") },
			level: "DEBUG",
			msg:   "control command dropped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler()
			tt.log(slog.New(h))

			record := h.lastRecord()
			require.NotNil(t, record)
			assert.Equal(t, tt.level, record["level"])
			assert.Equal(t, tt.msg, record["msg"])
			if tt.check != nil {
				tt.check(t, record)
			}
		})

		t.Run(tt.name+" nil logger does not panic", func(t *testing.T) {
			assert.NotPanics(t, func() { tt.log(nil) })
		})
	}
}

func TestTimedOperation(t *testing.T) {
	t.Run("measures duration", func(t *testing.T) {
		done := TimedOperation()
		time.Sleep(10 * time.Millisecond)
		assert.GreaterOrEqual(t, done(), 10.0)
	})

	t.Run("can be called multiple times", func(t *testing.T) {
		done := TimedOperation()
		time.Sleep(2 * time.Millisecond)
		d1 := done()
		time.Sleep(2 * time.Millisecond)
		d2 := done()
		assert.Greater(t, d2, d1)
	})
}
