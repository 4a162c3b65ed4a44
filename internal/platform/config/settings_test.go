package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 3000, s.Port)
	assert.Equal(t, "messages", s.CorpusRoot)

	// the file must now exist for the next load
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestLoadSettingsCorruptFileResetsToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 3000, s.Port)
}

func TestLoadSettingsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":8088,"corpus_root":"/data/msgs"}`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 8088, s.Port)
	assert.Equal(t, "/data/msgs", s.CorpusRoot)
}
