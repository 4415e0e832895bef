package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestNewGormLogger_Options(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Warn,
		WithSlowThreshold(time.Second),
		WithIgnoreRecordNotFoundError(false),
	)
	assert.Equal(t, gormlogger.Warn, gl.logLevel)
	assert.Equal(t, time.Second, gl.slowThreshold)
	assert.False(t, gl.ignoreRecordNotFoundError)

	changed := gl.LogMode(gormlogger.Info).(*GormLogger)
	assert.Equal(t, gormlogger.Info, changed.logLevel)
	assert.Equal(t, gormlogger.Warn, gl.logLevel)
}

func TestGormLogger_Messages(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "suppressed %d", 1)
	gl.Warn(ctx, "pool size %d", 5)
	gl.Error(ctx, "lost connection to %s", "db")

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "pool size 5", entries[0].Message)
	assert.Equal(t, "lost connection to db", entries[1].Message)
	assert.Equal(t, "gorm", entries[0].LoggerName)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		begin   time.Duration
		err     error
		message string
	}{
		{"error is logged", gormlogger.Error, 0, errors.New("syntax error"), "SQL Error"},
		{"record not found is ignored", gormlogger.Info, 0, gormlogger.ErrRecordNotFound, ""},
		{"slow query warns", gormlogger.Warn, time.Second, nil, "Slow SQL"},
		{"normal query at info", gormlogger.Info, 0, nil, "SQL Query"},
		{"normal query below info is dropped", gormlogger.Warn, 0, nil, ""},
		{"silent drops everything", gormlogger.Silent, 0, errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, recorded := newObservedGormLogger(tt.level)
			called := false
			fc := func() (string, int64) {
				called = true
				return `SELECT * FROM "invoice_records"`, 3
			}

			gl.Trace(context.Background(), time.Now().Add(-tt.begin), fc, tt.err)

			if tt.message == "" {
				assert.Zero(t, recorded.Len())
				assert.False(t, called, "sql should not be built when nothing is logged")
				return
			}
			require.Equal(t, 1, recorded.Len())
			entry := recorded.All()[0]
			assert.Equal(t, tt.message, entry.Message)
			assert.Equal(t, `SELECT * FROM "invoice_records"`, entry.ContextMap()["sql"])
			assert.EqualValues(t, 3, entry.ContextMap()["rows"])
		})
	}
}

func TestGormLogger_Trace_WithRequestID(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)
	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-db")

	gl.Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), nil)

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "req-db", recorded.All()[0].ContextMap()["request_id"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"unknown": gormlogger.Warn,
	}
	for input, expected := range tests {
		assert.Equal(t, expected, MapGormLogLevel(input), input)
	}
}

var _ gormlogger.Interface = (*GormLogger)(nil)
