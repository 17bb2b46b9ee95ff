// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Layer represents a configuration layer in the hierarchy.
//
// Precedence (low → high): Defaults < Base < EnvironmentFile < OverrideFile < EnvironmentVariables
type Layer int

const (
	// DefaultsLayer holds hard-coded default values set via SetDefault.
	DefaultsLayer Layer = iota
	// BaseLayer is the base configuration file (atelier.yaml).
	BaseLayer
	// EnvironmentFileLayer is the environment-specific file (atelier.prod.yaml).
	EnvironmentFileLayer
	// OverrideFileLayer is an operator local override file (atelier.override.yaml).
	OverrideFileLayer
	// EnvironmentVariablesLayer represents ATELIER_* environment variables.
	EnvironmentVariablesLayer
)

// String returns the layer name used in logs and reload events.
func (l Layer) String() string {
	switch l {
	case DefaultsLayer:
		return "defaults"
	case BaseLayer:
		return "base"
	case EnvironmentFileLayer:
		return "environment"
	case OverrideFileLayer:
		return "override"
	case EnvironmentVariablesLayer:
		return "env"
	default:
		return "unknown"
	}
}

// Options configures the Manager.
type Options struct {
	// WorkDir is the directory config files are resolved against.
	WorkDir string

	// ConfigBaseName is the file name without extension (default: "atelier").
	ConfigBaseName string

	// ConfigType is the configuration file type (yaml|yml|json). Default: "yaml".
	ConfigType string

	// EnvironmentName selects the environment file suffix, e.g. "dev" → atelier.dev.yaml.
	EnvironmentName string

	// OverrideFilename is the optional override file name. Default: "atelier.override.yaml".
	OverrideFilename string

	// EnvPrefix is the prefix for environment variables (default: "ATELIER").
	EnvPrefix string

	// EnableAutomaticEnv enables automatic env var binding with dot→underscore mapping.
	EnableAutomaticEnv bool
}

// DefaultOptions returns the options used by the atelier binaries.
func DefaultOptions() Options {
	return Options{
		WorkDir:            ".",
		ConfigBaseName:     "atelier",
		ConfigType:         "yaml",
		EnvironmentName:    os.Getenv("ATELIER_ENV"),
		OverrideFilename:   "atelier.override.yaml",
		EnvPrefix:          "ATELIER",
		EnableAutomaticEnv: true,
	}
}

// Manager provides hierarchical configuration loading, merging and access.
// Reload rebuilds the merged view from scratch so removed keys disappear.
type Manager struct {
	mu       sync.RWMutex
	v        *viper.Viper
	options  Options
	defaults map[string]interface{}
}

// NewManager creates a new Manager with the given options.
func NewManager(options Options) *Manager {
	if options.ConfigType == "" {
		options.ConfigType = "yaml"
	}
	if options.ConfigBaseName == "" {
		options.ConfigBaseName = "atelier"
	}
	if options.WorkDir == "" {
		options.WorkDir = "."
	}
	m := &Manager{options: options, defaults: make(map[string]interface{})}
	m.v = m.newViper()
	return m
}

func (m *Manager) newViper() *viper.Viper {
	v := viper.New()
	if m.options.EnableAutomaticEnv {
		if m.options.EnvPrefix != "" {
			v.SetEnvPrefix(m.options.EnvPrefix)
		}
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	}
	for key, value := range m.defaults {
		v.SetDefault(key, value)
	}
	return v
}

// SetDefault sets a default value for the given key.
func (m *Manager) SetDefault(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[key] = value
	m.v.SetDefault(key, value)
}

// Load merges all configured file layers in precedence order on top of the defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadInto(m.v)
}

// Reload re-reads every layer into a fresh viper instance and swaps it in
// only when all files parse.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := m.newViper()
	if err := m.loadInto(fresh); err != nil {
		return err
	}
	m.v = fresh
	return nil
}

func (m *Manager) loadInto(v *viper.Viper) error {
	if err := m.mergeFileIfExists(v, m.FilePath(BaseLayer)); err != nil {
		return fmt.Errorf("load base config: %w", err)
	}
	if m.options.EnvironmentName != "" {
		if err := m.mergeFileIfExists(v, m.FilePath(EnvironmentFileLayer)); err != nil {
			return fmt.Errorf("load env config: %w", err)
		}
	}
	if err := m.mergeFileIfExists(v, m.FilePath(OverrideFileLayer)); err != nil {
		return fmt.Errorf("load override config: %w", err)
	}
	return nil
}

// Unmarshal binds all merged settings into the given struct pointer.
func (m *Manager) Unmarshal(target interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if target == nil {
		return errors.New("target must not be nil")
	}
	return m.v.Unmarshal(target)
}

// Get returns a value by key from merged configuration.
func (m *Manager) Get(key string) interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.Get(key)
}

// GetString returns a string value by key.
func (m *Manager) GetString(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetString(key)
}

// AllSettings returns a copy of all merged settings as a map.
func (m *Manager) AllSettings() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.AllSettings()
}

// MergeConfigMap merges an arbitrary settings map with low precedence.
func (m *Manager) MergeConfigMap(settings map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v.MergeConfigMap(settings)
}

// WatchedFiles returns the file paths of every file layer, existing or not.
func (m *Manager) WatchedFiles() []string {
	files := []string{m.FilePath(BaseLayer)}
	if m.options.EnvironmentName != "" {
		files = append(files, m.FilePath(EnvironmentFileLayer))
	}
	return append(files, m.FilePath(OverrideFileLayer))
}

// FilePath returns the absolute file path for a given layer.
func (m *Manager) FilePath(layer Layer) string {
	dir := m.options.WorkDir
	base := m.options.ConfigBaseName
	switch layer {
	case BaseLayer:
		return filepath.Join(dir, fmt.Sprintf("%s.%s", base, m.normalizedConfigExt()))
	case EnvironmentFileLayer:
		env := m.options.EnvironmentName
		return filepath.Join(dir, fmt.Sprintf("%s.%s.%s", base, strings.ToLower(env), m.normalizedConfigExt()))
	case OverrideFileLayer:
		name := m.options.OverrideFilename
		if name == "" {
			name = fmt.Sprintf("%s.override.%s", base, m.normalizedConfigExt())
		}
		return filepath.Join(dir, name)
	default:
		return ""
	}
}

// LayerOf classifies a file path into its layer; unknown paths map to DefaultsLayer.
func (m *Manager) LayerOf(path string) Layer {
	clean := filepath.Clean(path)
	for _, layer := range []Layer{BaseLayer, EnvironmentFileLayer, OverrideFileLayer} {
		if filepath.Clean(m.FilePath(layer)) == clean {
			return layer
		}
	}
	return DefaultsLayer
}

func (m *Manager) normalizedConfigExt() string {
	t := strings.ToLower(m.options.ConfigType)
	switch t {
	case "yml":
		return "yaml"
	case "yaml", "json", "toml":
		return t
	default:
		return "yaml"
	}
}

// mergeFileIfExists merges a configuration file if it exists. Missing files are ignored.
func (m *Manager) mergeFileIfExists(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	tmp := viper.New()
	tmp.SetConfigType(m.normalizedConfigExt())
	if err := tmp.ReadConfig(bytes.NewReader(content)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return v.MergeConfigMap(tmp.AllSettings())
}
