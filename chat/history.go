package chat

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/robch/cycod-sub003/errors"
)

// Metadata is the conversation metadata persisted alongside the transcript.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	TitleLocked bool   `json:"title_locked,omitempty"`
}

// historyFile is the on-disk document format.
type historyFile struct {
	Title       string    `json:"title,omitempty"`
	TitleLocked bool      `json:"title_locked,omitempty"`
	Messages    []Message `json:"messages"`
}

// Load reads a chat history file. The file is either a metadata document or,
// for older files, a bare message array; in the latter case nil metadata is
// returned and the caller synthesizes defaults.
func Load(path string) (*Metadata, []Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not read chat history %s", path)
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var msgs []Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, nil, errors.Wrapf(err, "could not parse chat history %s", path)
		}
		return nil, msgs, nil
	}

	var doc historyFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Wrapf(err, "could not parse chat history %s", path)
	}
	return &Metadata{Title: doc.Title, TitleLocked: doc.TitleLocked}, doc.Messages, nil
}

// Save writes the transcript and metadata to path, creating parent
// directories as needed.
func Save(path string, md Metadata, msgs []Message) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "could not create history directory %s", dir)
		}
	}
	doc := historyFile{Title: md.Title, TitleLocked: md.TitleLocked, Messages: msgs}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize chat history")
	}
	return os.WriteFile(path, data, 0644)
}

// Exists reports whether a history file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DefaultHistoryDir returns the per-user chat history directory.
func DefaultHistoryDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve home directory")
	}
	return filepath.Join(home, ".cycod", "history"), nil
}

// NewHistoryPath returns a timestamped path for a fresh history file.
func NewHistoryPath(dir string) string {
	name := time.Now().Format("chat-2006-01-02-15-04-05") + ".json"
	return filepath.Join(dir, name)
}

// LatestHistoryPath returns the most recently modified history file in dir,
// or an error when the directory holds none.
func LatestHistoryPath(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrapf(err, "could not read history directory %s", dir)
	}
	var latest string
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(dir, e.Name())
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return "", errors.New("no chat history files in %s", dir)
	}
	return latest, nil
}
