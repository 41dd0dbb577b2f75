// Package config loads tuick's small set of persistent preferences:
// recipe overrides, editor template, and timing defaults that outlive a
// single invocation. CLI flags always take precedence over anything
// loaded here.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the preferences a .tuick.yaml/config.yaml file may set.
type Config struct {
	// Recipes maps a checker command's base name to an errorformat
	// recipe name, overriding auto-detection.
	Recipes map[string]string `yaml:"recipes,omitempty"`
	// Editor selects the launch template used for a selected block,
	// e.g. "vscode", "sublime", or a custom command template.
	Editor string `yaml:"editor,omitempty"`
	// WatchDebounceMS is the native watcher's debounce window.
	WatchDebounceMS int `yaml:"watch_debounce_ms,omitempty"`
	// SoftTerminateMS is how long Terminate waits after a soft signal
	// before escalating to a hard kill.
	SoftTerminateMS int `yaml:"soft_terminate_ms,omitempty"`
}

func (c Config) WatchDebounce() time.Duration {
	if c.WatchDebounceMS <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.WatchDebounceMS) * time.Millisecond
}

func (c Config) SoftTerminateTimeout() time.Duration {
	if c.SoftTerminateMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.SoftTerminateMS) * time.Millisecond
}

// Manager loads and merges the user-level and project-level config
// files, with the project file's fields winning field-by-field.
type Manager struct {
	userConfig    Config
	projectConfig Config
	merged        Config
}

func NewManager() *Manager {
	return &Manager{}
}

// Load reads userConfigDir/config.yaml and projectDir/.tuick.yaml, if
// present, and merges them.
func (m *Manager) Load(userConfigDir, projectDir string) error {
	userPath := filepath.Join(userConfigDir, "config.yaml")
	if err := m.loadConfig(userPath, &m.userConfig); err != nil {
		return err
	}

	projectPath := filepath.Join(projectDir, ".tuick.yaml")
	if err := m.loadConfig(projectPath, &m.projectConfig); err != nil {
		return err
	}

	m.mergeConfigs()
	return nil
}

func (m *Manager) loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (m *Manager) mergeConfigs() {
	recipes := map[string]string{}
	for k, v := range m.userConfig.Recipes {
		recipes[k] = v
	}
	for k, v := range m.projectConfig.Recipes {
		recipes[k] = v
	}
	m.merged = Config{
		Recipes:         recipes,
		Editor:          firstNonEmpty(m.projectConfig.Editor, m.userConfig.Editor),
		WatchDebounceMS: firstNonZero(m.projectConfig.WatchDebounceMS, m.userConfig.WatchDebounceMS),
		SoftTerminateMS: firstNonZero(m.projectConfig.SoftTerminateMS, m.userConfig.SoftTerminateMS),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// Get returns the merged configuration.
func (m *Manager) Get() Config {
	return m.merged
}
