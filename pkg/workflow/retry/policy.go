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

// Package retry provides the backoff policies used by the step executor and
// the compensation registry.
package retry

import (
	"errors"
	"time"
)

// ErrInvalidConfig is returned when the retry configuration is invalid.
var ErrInvalidConfig = errors.New("invalid retry configuration")

// Policy decides whether and when a failed attempt is retried.
// Attempts are numbered from 1.
type Policy interface {
	// ShouldRetry reports whether another attempt follows the failed attempt.
	ShouldRetry(err error, attempt int) bool
	// Delay returns the wait before the attempt following attempt.
	Delay(attempt int) time.Duration
	// MaxAttempts returns the attempt budget including the first attempt.
	MaxAttempts() int
}

// Config defines the settings shared by retry policies.
type Config struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	// A value of 1 means no retries.
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `mapstructure:"initial_delay" json:"initial_delay"`

	// MaxDelay caps a single delay. Zero means uncapped.
	MaxDelay time.Duration `mapstructure:"max_delay" json:"max_delay"`

	// Multiplier grows the delay per attempt. Values below 1 default to 2.
	Multiplier float64 `mapstructure:"multiplier" json:"multiplier"`

	// Jitter is the fraction of the delay randomized, between 0 and 1.
	Jitter float64 `mapstructure:"jitter" json:"jitter"`

	// NonRetryableErrors stop retries when matched with errors.Is.
	NonRetryableErrors []error `mapstructure:"-" json:"-"`
}

// Validate validates the retry configuration.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return ErrInvalidConfig
	}
	if c.InitialDelay < 0 || c.Jitter < 0 || c.Jitter > 1 {
		return ErrInvalidConfig
	}
	if c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
		return ErrInvalidConfig
	}
	return nil
}

// DefaultConfig returns the default step retry configuration:
// 3 attempts, 200ms initial delay doubling up to 5s, 20% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}
}

// IsRetryableError reports whether err is worth another attempt under this config.
func (c *Config) IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	for _, nonRetryable := range c.NonRetryableErrors {
		if errors.Is(err, nonRetryable) {
			return false
		}
	}
	return true
}

type noRetry struct{}

// NoRetry returns a policy allowing exactly one attempt. Steps whose side
// effect must never repeat, such as a payment capture, use it.
func NoRetry() Policy {
	return noRetry{}
}

func (noRetry) ShouldRetry(error, int) bool { return false }
func (noRetry) Delay(int) time.Duration     { return 0 }
func (noRetry) MaxAttempts() int            { return 1 }
