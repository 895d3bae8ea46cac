package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields(t *testing.T) {
	assert.Nil(t, Fields())

	got := Fields("module", "Tumblr", 7, "seven", "dangling")
	require.Len(t, got, 2)
	assert.Equal(t, Field{Key: "module", Value: "Tumblr"}, got[0])
	assert.Equal(t, Field{Key: "7", Value: "seven"}, got[1])
}

func TestErr(t *testing.T) {
	cause := errors.New("boom")
	assert.Equal(t, Field{Key: "error", Value: cause}, Err(cause))
}

func TestConsoleOnlyLogger(t *testing.T) {
	l, err := NewZapLogger(ZapConfig{Console: true, Level: LevelWarn})
	require.NoError(t, err)
	assert.False(t, l.Enabled(LevelInfo))
	assert.True(t, l.Enabled(LevelError))

	_, err = NewZapLogger(ZapConfig{})
	assert.Equal(t, errEmptyLogPath, err)
}

func TestGetOr(t *testing.T) {
	resetRegistry()

	fallback := NewConsoleLogger(LevelInfo)
	assert.Same(t, fallback, GetOr("missing", fallback))

	require.NoError(t, Register("host", Nop()))
	assert.Equal(t, Nop(), GetOr("host", fallback))
	assert.Equal(t, []string{"host"}, Names())
	assert.NoError(t, SyncAll())
}
