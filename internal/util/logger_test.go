package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerLevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")

	require.NoError(t, InitLogger("production"))
	l := GetLogger()
	require.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")

	assert.Error(t, InitLogger("development"))
}
