package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"panic": zapcore.PanicLevel,
		"fatal": zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestFromContext verifies the context helpers fall back to the global logger
// and return the stored logger when one is attached.
func TestFromContext(t *testing.T) {
	t.Parallel()

	// No logger attached -> global.
	require.Same(t, Logger(), FromContext(context.Background()))

	// Attached logger is returned.
	named := Logger().Named("test")
	ctx := ToContext(context.Background(), named)
	require.Same(t, named, FromContext(ctx))

	// Nil context -> global, no panic.
	//nolint:staticcheck // Passing nil on purpose to exercise the fallback.
	require.Same(t, Logger(), FromContext(nil))
}

// TestScopedHelpers verifies WithName and WithKV attach a derived logger.
func TestScopedHelpers(t *testing.T) {
	t.Parallel()

	ctx := WithName(context.Background(), "scoped")
	require.NotSame(t, Logger(), FromContext(ctx))

	ctx = WithKV(ctx, "timer", "laundry")
	require.NotSame(t, Logger(), FromContext(ctx))
}
