package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("Production", func(t *testing.T) {
		l, err := New("ledger-bot", "production", "warn")
		require.NoError(t, err)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("Development", func(t *testing.T) {
		l, err := New("ledger-bot", "development", "debug")
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("Invalid Level", func(t *testing.T) {
		_, err := New("ledger-bot", "development", "loud")
		assert.ErrorContains(t, err, "invalid log level")
	})

	t.Run("Must Panics", func(t *testing.T) {
		assert.Panics(t, func() { Must("ledger-bot", "development", "loud") })
	})
}
