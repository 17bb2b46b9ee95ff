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

// Package config provides the config inspection commands.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	atelierconfig "github.com/innovationmech/atelier/internal/atelier/config"
)

const redacted = "******"

// NewConfigCommand creates the 'config' command with its subcommands.
func NewConfigCommand() *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding atelier.yaml (default: current directory)")
	cmd.AddCommand(newPrintCommand(&configDir))
	cmd.AddCommand(newValidateCommand(&configDir))
	return cmd
}

func newPrintCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print the merged configuration as YAML with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := atelierconfig.NewManager(*configDir)
			if _, err := atelierconfig.Load(m); err != nil {
				return err
			}
			settings := m.AllSettings()
			for _, key := range atelierconfig.SecretKeys {
				redact(settings, strings.Split(key, "."))
			}
			out, err := yaml.Marshal(normalize(settings))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newValidateCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := atelierconfig.NewManager(*configDir)
			cfg, err := atelierconfig.Load(m)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprint(out, "✓ ")
			fmt.Fprintf(out, "configuration is valid (%s)\n", strings.Join(m.WatchedFiles(), ", "))
			fmt.Fprintf(out, "  store=%s slots=%s notify=%s events=%s\n",
				cfg.Store.Backend, cfg.Slots.Backend, cfg.Notify.Backend, cfg.Events.Backend)
			return nil
		},
	}
}

// redact replaces a non-empty value at path.
func redact(settings map[string]interface{}, path []string) {
	if len(path) == 0 {
		return
	}
	value, ok := settings[path[0]]
	if !ok {
		return
	}
	if len(path) > 1 {
		if child, ok := value.(map[string]interface{}); ok {
			redact(child, path[1:])
		}
		return
	}
	if s, ok := value.(string); ok && s == "" {
		return
	}
	settings[path[0]] = redacted
}

// normalize renders durations as strings so they read like the config files.
func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			v[key] = normalize(child)
		}
		return v
	case []interface{}:
		for i, child := range v {
			v[i] = normalize(child)
		}
		return v
	case time.Duration:
		return v.String()
	default:
		return v
	}
}
