package wordlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnglish(t *testing.T) {
	wl := English()
	assert.Equal(t, 2048, wl.Size())

	assert.True(t, wl.Contains("abandon"))
	assert.True(t, wl.Contains("zoo"))
	assert.False(t, wl.Contains("notaword"))
	assert.False(t, wl.Contains("Abandon"), "lookups are case sensitive")

	idx, ok := wl.IndexOf("abandon")
	require.True(t, ok)
	assert.Equal(t, uint16(0), idx)

	idx, ok = wl.IndexOf("zoo")
	require.True(t, ok)
	assert.Equal(t, uint16(2047), idx)

	_, ok = wl.IndexOf("notaword")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	content := "alpha\nbravo\n\n  charlie  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	wl, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, wl.Size())
	assert.True(t, wl.Contains("charlie"), "words are trimmed")

	idx, ok := wl.IndexOf("bravo")
	require.True(t, ok)
	assert.Equal(t, uint16(1), idx)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile("/nonexistent/words.txt")
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0644))
	_, err = LoadFile(empty)
	assert.Error(t, err)
}
