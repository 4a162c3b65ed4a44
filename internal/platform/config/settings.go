package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
)

// Settings is the flat key-value JSON settings file persisted next to the
// process. It holds only the knobs an operator edits by hand.
type Settings struct {
	Port        int    `json:"port"`
	CorpusRoot  string `json:"corpus_root"`
	ArchiveRoot string `json:"archive_root"`
	StaticDir   string `json:"static_dir"`
}

func defaultSettings() *Settings {
	return &Settings{
		Port:        3000,
		CorpusRoot:  "messages",
		ArchiveRoot: "messages_archive",
		StaticDir:   "public",
	}
}

// LoadSettings reads the settings file at path. A missing or corrupt file is
// replaced with defaults and never fails the caller.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return writeDefaults(path)
	}

	if err != nil {
		return nil, err
	}

	s := &Settings{}
	if err := json.Unmarshal(data, s); err != nil {
		return writeDefaults(path)
	}

	if s.Port == 0 {
		s.Port = defaultSettings().Port
	}

	if s.CorpusRoot == "" {
		s.CorpusRoot = defaultSettings().CorpusRoot
	}

	return s, nil
}

func writeDefaults(path string) (*Settings, error) {
	s := defaultSettings()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}

	return s, nil
}
