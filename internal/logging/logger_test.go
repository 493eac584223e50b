package logging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func jsonLogger(t *testing.T, mutate func(*Config)) (*zap.Logger, *zaptest.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	if mutate != nil {
		mutate(cfg)
	}
	buf := &zaptest.Buffer{}
	logger, err := newLogger(cfg, buf)
	require.NoError(t, err)
	return logger, buf
}

func decodeLines(t *testing.T, buf *zaptest.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range buf.Lines() {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger_JSON(t *testing.T) {
	logger, buf := jsonLogger(t, nil)
	logger.Info("memory captured", zap.String("id", "mem_0123456789ab"))
	logger.Debug("hidden")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "memory captured", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "mem_0123456789ab", lines[0]["id"])
	assert.Contains(t, lines[0], "ts")
}

func TestNewLogger_TraceLevel(t *testing.T) {
	logger, buf := jsonLogger(t, func(c *Config) { c.Level = "trace" })
	logger.Log(TraceLevel, "wire")
	logger.Debug("debug")
	assert.Len(t, buf.Lines(), 2)
}

func TestNewLogger_RedactsEntryFields(t *testing.T) {
	logger, buf := jsonLogger(t, nil)
	logger.Info("calling tei",
		zap.String("api_key", "sk_live_abc"),
		zap.String("header", "Bearer abcdef0123456789"),
		zap.Error(errors.New("rejected api_key=sk_live_abc")),
		zap.String("model", "all-MiniLM-L6-v2"),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["api_key"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["header"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["error"])
	assert.Equal(t, "all-MiniLM-L6-v2", lines[0]["model"])
	assert.NotContains(t, buf.String(), "sk_live_abc")
}

func TestNewLogger_RedactsWithFields(t *testing.T) {
	logger, buf := jsonLogger(t, nil)
	logger.With(zap.String("password", "hunter2")).Info("child")

	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), "[REDACTED]")
}

func TestNewLogger_RedactionDisabled(t *testing.T) {
	logger, buf := jsonLogger(t, func(c *Config) { c.Redaction.Enabled = false })
	logger.Info("plain", zap.String("token", "visible"))
	assert.Contains(t, buf.String(), "visible")
}

func TestNewLogger_Console(t *testing.T) {
	cfg := NewDefaultConfig()
	buf := &zaptest.Buffer{}
	logger, err := newLogger(cfg, buf)
	require.NoError(t, err)

	logger.Warn("search skipped", zap.String("backend", "sqlite"))
	require.Len(t, buf.Lines(), 1)
	assert.Contains(t, buf.Lines()[0], "WARN")
	assert.Contains(t, buf.Lines()[0], "search skipped")
}

func TestNewLogger_NilConfig(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Level = "loud" }, "invalid level"},
		{"bad format", func(c *Config) { c.Format = "xml" }, "format must be"},
		{"no output", func(c *Config) { c.Output.Stderr = false }, "at least one output"},
		{"zero tick", func(c *Config) { c.Sampling.Enabled = true; c.Sampling.Tick = 0 }, "sampling tick"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLevelFromString(t *testing.T) {
	for in, want := range map[string]string{"trace": "Level(-2)", "": "info", "debug": "debug", "ERROR": "error"} {
		lvl, err := LevelFromString(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, lvl.String(), in)
	}
	_, err := LevelFromString("verbose")
	assert.Error(t, err)
}

func TestSampling_NeverDropsErrors(t *testing.T) {
	logger, buf := jsonLogger(t, func(c *Config) {
		c.Sampling.Enabled = true
		c.Sampling.Initial = 1
		c.Sampling.Thereafter = 0
	})
	for i := 0; i < 5; i++ {
		logger.Info("repeated")
		logger.Error("failure")
	}

	var infos, errs int
	for _, l := range decodeLines(t, buf) {
		switch l["msg"] {
		case "repeated":
			infos++
		case "failure":
			errs++
		}
	}
	assert.Equal(t, 1, infos)
	assert.Equal(t, 5, errs)
}

func TestWithContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRequestID(context.Background(), "req-1")

	WithContext(ctx, tl.Logger).Info("handled")
	WithContext(context.Background(), tl.Logger).Info("bare")

	tl.AssertLogged(t, zap.InfoLevel, "handled")
	handled := tl.FilterMessage("handled").All()
	require.Len(t, handled, 1)
	assert.Equal(t, "req-1", handled[0].ContextMap()["request.id"])
	assert.Empty(t, tl.FilterMessage("bare").All()[0].Context)
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	tl.Warn("ledger note replaced a different memory", zap.String("replaced_id", "mem_a"))

	tl.AssertLogged(t, zap.WarnLevel, "replaced a different")
	tl.AssertNotLogged(t, zap.ErrorLevel, "replaced")
	tl.AssertNotContains(t, "hunter2")
	assert.Len(t, tl.All(), 1)

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("api_key", "sk-1234567890abcdef")
	assert.Equal(t, "[REDACTED:19]", f.String)
}
