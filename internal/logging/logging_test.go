package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewAtomicLevelReflectsConfig(t *testing.T) {
	_, level, err := NewAtomic(Config{Level: "warn", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
}

func TestNewAtomicDefaultsToInfoOnBlankLevel(t *testing.T) {
	_, level, err := NewAtomic(Config{Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level.Level())
}

func TestAtomicLevelCanBeRaisedAfterConstruction(t *testing.T) {
	logger, level, err := NewAtomic(Config{Level: "info", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	require.NoError(t, level.UnmarshalText([]byte("debug")))
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}

func TestNewHumanDefaultsToInfoOnInvalidLevel(t *testing.T) {
	human := NewHuman(Config{Level: "not-a-level", Format: "text", Output: "stdout"})
	require.NotNil(t, human)
	assert.Equal(t, "info", human.GetLevel().String())
}
