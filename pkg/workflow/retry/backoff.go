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

package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackoff implements exponential backoff with proportional jitter.
// delay = InitialDelay * Multiplier^(attempt-1), capped at MaxDelay, then
// randomized within ±Jitter of its value.
type ExponentialBackoff struct {
	config Config
	random func() float64
}

// NewExponentialBackoff creates an exponential backoff policy. Invalid
// multipliers and jitter values are clamped.
func NewExponentialBackoff(config Config) *ExponentialBackoff {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Multiplier < 1 {
		config.Multiplier = 2
	}
	if config.Jitter < 0 {
		config.Jitter = 0
	}
	if config.Jitter > 1 {
		config.Jitter = 1
	}
	return &ExponentialBackoff{config: config, random: rand.Float64}
}

// Config returns the effective configuration.
func (p *ExponentialBackoff) Config() Config {
	return p.config
}

// ShouldRetry reports whether another attempt follows the failed attempt.
func (p *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.config.MaxAttempts {
		return false
	}
	return p.config.IsRetryableError(err)
}

// Delay calculates the backoff delay after the given failed attempt.
func (p *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := float64(p.config.InitialDelay) * math.Pow(p.config.Multiplier, float64(attempt-1))
	if p.config.MaxDelay > 0 && base > float64(p.config.MaxDelay) {
		base = float64(p.config.MaxDelay)
	}

	if p.config.Jitter > 0 {
		// uniform in [base*(1-jitter), base*(1+jitter)]
		base += base * p.config.Jitter * (2*p.random() - 1)
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

// MaxAttempts returns the attempt budget.
func (p *ExponentialBackoff) MaxAttempts() int {
	return p.config.MaxAttempts
}

// FixedInterval retries with a constant delay.
type FixedInterval struct {
	Attempts int
	Interval time.Duration
}

// ShouldRetry reports whether another attempt follows the failed attempt.
func (p FixedInterval) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt < p.Attempts
}

// Delay returns the constant interval.
func (p FixedInterval) Delay(int) time.Duration {
	return p.Interval
}

// MaxAttempts returns the attempt budget.
func (p FixedInterval) MaxAttempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}
