package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var ErrStorageWrite = errors.New("failed to write settings")

// Settings persists operator-set runtime configuration (webhook target,
// listener toggle) so it survives process restarts.
type Settings struct {
	path string
	mu   sync.Mutex
}

type settingsData struct {
	WebhookURL string `json:"webhook_url,omitempty"`
	Listening  bool   `json:"listening"`
}

// RuntimeSettings is the loaded settings value.
type RuntimeSettings struct {
	WebhookURL string
	Listening  bool
}

func NewSettings(baseDir string) (*Settings, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Settings{path: filepath.Join(baseDir, "settings.json")}, nil
}

// Load reads the persisted settings. A missing file yields zero values, not
// an error: first boot has nothing to restore.
func (s *Settings) Load() (RuntimeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return RuntimeSettings{}, nil
		}
		return RuntimeSettings{}, fmt.Errorf("read settings: %w", err)
	}

	var d settingsData
	if err := json.Unmarshal(data, &d); err != nil {
		return RuntimeSettings{}, fmt.Errorf("parse settings: %w", err)
	}
	return RuntimeSettings{WebhookURL: d.WebhookURL, Listening: d.Listening}, nil
}

// Save writes the settings atomically (temp file + rename).
func (s *Settings) Save(rs RuntimeSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(settingsData{
		WebhookURL: rs.WebhookURL,
		Listening:  rs.Listening,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}
