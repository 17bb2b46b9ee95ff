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

package tracing

import (
	"errors"
	"fmt"
	"time"
)

// Exporter types.
const (
	ExporterConsole  = "console"
	ExporterOTLPHTTP = "otlp"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterNone     = "none"
)

// Config configures the tracer provider.
type Config struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
	SampleRate  float64 `yaml:"sample_rate" mapstructure:"sample_rate"`

	Exporter ExporterConfig `yaml:"exporter" mapstructure:"exporter"`

	// ResourceAttributes are added to every span's resource.
	ResourceAttributes map[string]string `yaml:"resource_attributes" mapstructure:"resource_attributes"`
}

// ExporterConfig selects and configures the span exporter.
type ExporterConfig struct {
	Type        string            `yaml:"type" mapstructure:"type"`
	Endpoint    string            `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure    bool              `yaml:"insecure" mapstructure:"insecure"`
	Headers     map[string]string `yaml:"headers" mapstructure:"headers"`
	Compression string            `yaml:"compression" mapstructure:"compression"` // gzip, none
	Timeout     time.Duration     `yaml:"timeout" mapstructure:"timeout"`
	PrettyPrint bool              `yaml:"pretty_print" mapstructure:"pretty_print"`
}

// DefaultConfig returns tracing disabled with a console exporter.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ServiceName: "atelier",
		SampleRate:  1.0,
		Exporter: ExporterConfig{
			Type:    ExporterConsole,
			Timeout: 10 * time.Second,
		},
	}
}

// Validate validates the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return errors.New("service_name is required when tracing is enabled")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %v", c.SampleRate)
	}
	switch c.Exporter.Type {
	case ExporterConsole, ExporterNone:
	case ExporterOTLPHTTP, ExporterOTLPGRPC:
		if c.Exporter.Endpoint == "" {
			return fmt.Errorf("%s exporter requires an endpoint", c.Exporter.Type)
		}
	default:
		return fmt.Errorf("unsupported exporter type: %s", c.Exporter.Type)
	}
	switch c.Exporter.Compression {
	case "", "gzip", "none":
	default:
		return fmt.Errorf("unsupported compression: %s", c.Exporter.Compression)
	}
	return nil
}
