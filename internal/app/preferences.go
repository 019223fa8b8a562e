package app

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Preferences are the last-used search settings
type Preferences struct {
	DestinationDir string `yaml:"destination_dir,omitempty"`
	ResultQuota    *int   `yaml:"result_quota,omitempty"`
	DateFloor      string `yaml:"date_floor,omitempty"` // YYYY-MM-DD
	MinIssue       *int   `yaml:"min_issue,omitempty"`
	Accelerated    bool   `yaml:"accelerated"`
	Verbose        bool   `yaml:"verbose"`
}

// PreferencesStore persists Preferences as a flat YAML document
type PreferencesStore struct {
	path   string
	logger *zap.Logger
}

// NewPreferencesStore creates a store backed by path
func NewPreferencesStore(path string, logger *zap.Logger) *PreferencesStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferencesStore{path: path, logger: logger}
}

// Path returns the backing file
func (s *PreferencesStore) Path() string {
	return s.path
}

// Load reads the preferences. A missing or unreadable file yields defaults.
func (s *PreferencesStore) Load() *Preferences {
	prefs := &Preferences{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read preferences, using defaults", zap.String("path", s.path), zap.Error(err))
		}
		return prefs
	}

	if err := yaml.Unmarshal(data, prefs); err != nil {
		s.logger.Warn("Corrupt preferences file, using defaults", zap.String("path", s.path), zap.Error(err))
		return &Preferences{}
	}
	return prefs
}

// Save writes the preferences, replacing the file atomically
func (s *PreferencesStore) Save(prefs *Preferences) error {
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".preferences-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}
