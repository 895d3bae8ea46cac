package fsx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopedRoundTrip(t *testing.T) {
	s := NewFs(afero.NewMemMapFs())

	ok, err := s.Exists("state/seen.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.WriteFile("state/seen.txt", []byte("cats")))
	ok, err = s.Exists("state/seen.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.ReadFile("state/seen.txt")
	require.NoError(t, err)
	assert.Equal(t, "cats", string(data))

	require.NoError(t, s.Remove("state/seen.txt"))
	require.NoError(t, s.Remove("state/seen.txt"))
	ok, err = s.Exists("state/seen.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScopedRejectsEscapes(t *testing.T) {
	s := NewFs(afero.NewMemMapFs())
	for _, p := range []string{"", "/etc/passwd", "../other/Config.json", "a/../../b"} {
		_, err := s.ReadFile(p)
		assert.ErrorIs(t, err, ErrInvalidPath, p)
		assert.ErrorIs(t, s.WriteFile(p, nil), ErrInvalidPath, p)
	}
}

func TestScopedStaysInsideDir(t *testing.T) {
	root := t.TempDir()
	unit := filepath.Join(root, "Tumblr")
	require.NoError(t, os.MkdirAll(unit, 0o755))

	s := New(unit)
	require.NoError(t, s.WriteFile("cache.json", []byte("{}")))

	_, err := os.Stat(filepath.Join(unit, "cache.json"))
	require.NoError(t, err)

	_, err = s.ReadFile("missing.json")
	assert.Error(t, err)
}
