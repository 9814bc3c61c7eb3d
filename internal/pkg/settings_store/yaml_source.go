package settings_store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"lightbot/internal/app/settings"
)

type modelList struct {
	SelectedIndex int                    `yaml:"selected_index"`
	List          []settings.ModelConfig `yaml:"list"`
}

type generalSettings struct {
	SystemPrompt   string `yaml:"system_prompt"`
	SearchProvider string `yaml:"search_provider"`
	SearchURL      string `yaml:"search_url"`
	Hotkey         string `yaml:"hotkey"`
}

// fileLayout is the on-disk shape of the settings file.
type fileLayout struct {
	Models     modelList       `yaml:"models"`
	FastModels modelList       `yaml:"fast_models"`
	Settings   generalSettings `yaml:"settings"`
}

func toLayout(s settings.EngineSettings) fileLayout {
	return fileLayout{
		Models:     modelList{SelectedIndex: s.ModelIndex, List: s.Models},
		FastModels: modelList{SelectedIndex: s.FastModelIndex, List: s.FastModels},
		Settings: generalSettings{
			SystemPrompt:   s.SystemPrompt,
			SearchProvider: s.SearchProvider,
			SearchURL:      s.SearchURL,
			Hotkey:         s.Hotkey,
		},
	}
}

func (l fileLayout) engineSettings() settings.EngineSettings {
	defaults := settings.Defaults()
	s := settings.EngineSettings{
		Models:         l.Models.List,
		ModelIndex:     l.Models.SelectedIndex,
		FastModels:     l.FastModels.List,
		FastModelIndex: l.FastModels.SelectedIndex,
		SystemPrompt:   l.Settings.SystemPrompt,
		SearchProvider: l.Settings.SearchProvider,
		SearchURL:      l.Settings.SearchURL,
		Hotkey:         l.Settings.Hotkey,
	}
	if s.SystemPrompt == "" {
		s.SystemPrompt = defaults.SystemPrompt
	}
	if s.SearchProvider == "" {
		s.SearchProvider = defaults.SearchProvider
	}
	if s.Hotkey == "" {
		s.Hotkey = defaults.Hotkey
	}
	return s
}

// YAMLSource keeps engine settings in a single YAML file that users may
// also edit by hand.
type YAMLSource struct {
	mu   sync.Mutex
	path string
}

func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

func (y *YAMLSource) Path() string {
	return y.path
}

func (y *YAMLSource) Load() (settings.EngineSettings, error) {
	startTime := time.Now()
	defer func() {
		log.Debugf("YAMLSource.Load from %s took %v", y.path, time.Since(startTime))
	}()
	y.mu.Lock()
	defer y.mu.Unlock()

	data, err := os.ReadFile(y.path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings.EngineSettings{}, settings.ErrNoSettings
	} else if err != nil {
		return settings.EngineSettings{}, fmt.Errorf("read settings file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return settings.EngineSettings{}, settings.ErrNoSettings
	}

	var layout fileLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return settings.EngineSettings{}, fmt.Errorf("parse settings file %s: %w", y.path, err)
	}
	return layout.engineSettings(), nil
}

// Save writes to a temporary file and renames it over the target so a
// concurrent reader never sees a partial file.
func (y *YAMLSource) Save(s settings.EngineSettings) error {
	startTime := time.Now()
	defer func() {
		log.Debugf("YAMLSource.Save to %s took %v", y.path, time.Since(startTime))
	}()
	y.mu.Lock()
	defer y.mu.Unlock()

	data, err := yaml.Marshal(toLayout(s))
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(y.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, y.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	log.Infof("Saved settings to %s", y.path)
	return nil
}
