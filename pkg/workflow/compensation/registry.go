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

// Package compensation keeps the per-instance ledger of undo actions and
// runs them in reverse completion order when an instance fails.
package compensation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/workflow/retry"
)

// Action undoes the effect of one succeeded step.
type Action func(ctx context.Context) error

// Failure describes a compensation that kept failing after its retries.
type Failure struct {
	InstanceID string
	Step       string
	Err        error
	Attempts   int
	At         time.Time
}

// Reporter receives compensation failures for manual reconciliation.
type Reporter interface {
	ReportCompensationFailure(ctx context.Context, failure Failure)
}

// Report is the result of compensating one instance.
type Report struct {
	// Compensated lists the steps undone successfully, in execution order.
	Compensated []string
	// Failures lists the steps whose compensation failed.
	Failures []Failure
}

type entry struct {
	step   string
	action Action
}

// Registry is safe for concurrent use; ledgers are partitioned per instance.
type Registry struct {
	mu       sync.Mutex
	ledgers  map[string][]entry
	policy   retry.Policy
	reporter Reporter
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetryPolicy sets the retry policy applied to each compensation.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(r *Registry) {
		if policy != nil {
			r.policy = policy
		}
	}
}

// WithReporter sets where exhausted compensation failures are reported.
func WithReporter(reporter Reporter) Option {
	return func(r *Registry) {
		if reporter != nil {
			r.reporter = reporter
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry. Compensations are retried 3 times
// with exponential backoff unless configured otherwise.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		ledgers: make(map[string][]entry),
		policy: retry.NewExponentialBackoff(retry.Config{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
			Jitter:       0.1,
		}),
		logger: logger.GetLogger().Named("compensation"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends the compensation of step to the ledger of instanceID.
// Recording a step twice replaces the earlier action.
func (r *Registry) Record(instanceID, step string, action Action) {
	if action == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger := r.ledgers[instanceID]
	for i := range ledger {
		if ledger[i].step == step {
			ledger[i].action = action
			return
		}
	}
	r.ledgers[instanceID] = append(ledger, entry{step: step, action: action})
}

// Pending returns the steps with recorded compensations, in completion order.
func (r *Registry) Pending(instanceID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger := r.ledgers[instanceID]
	steps := make([]string, 0, len(ledger))
	for _, e := range ledger {
		steps = append(steps, e.step)
	}
	return steps
}

// Forget drops the ledger of instanceID.
func (r *Registry) Forget(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ledgers, instanceID)
}

// Compensate runs the recorded actions of instanceID in reverse order. A
// failing action does not stop the remaining ones. The ledger is consumed.
func (r *Registry) Compensate(ctx context.Context, instanceID string) Report {
	r.mu.Lock()
	ledger := r.ledgers[instanceID]
	delete(r.ledgers, instanceID)
	r.mu.Unlock()

	var report Report
	for i := len(ledger) - 1; i >= 0; i-- {
		e := ledger[i]
		attempts, err := r.run(ctx, e.action)
		if err == nil {
			r.logger.Info("step compensated",
				zap.String("instance_id", instanceID),
				zap.String("step", e.step),
				zap.Int("attempts", attempts))
			report.Compensated = append([]string{e.step}, report.Compensated...)
			continue
		}

		failure := Failure{
			InstanceID: instanceID,
			Step:       e.step,
			Err:        err,
			Attempts:   attempts,
			At:         time.Now(),
		}
		r.logger.Error("compensation failed, manual reconciliation required",
			zap.String("instance_id", instanceID),
			zap.String("step", e.step),
			zap.Int("attempts", attempts),
			zap.Error(err))
		if r.reporter != nil {
			r.reporter.ReportCompensationFailure(ctx, failure)
		}
		report.Failures = append(report.Failures, failure)
	}
	return report
}

func (r *Registry) run(ctx context.Context, action Action) (int, error) {
	attempt := 0
	for {
		attempt++
		panicked, err := invoke(ctx, action)
		if err == nil {
			return attempt, nil
		}
		if panicked || !r.policy.ShouldRetry(err, attempt) {
			return attempt, err
		}
		select {
		case <-ctx.Done():
			return attempt, err
		case <-time.After(r.policy.Delay(attempt)):
		}
	}
}

// invoke runs action and turns a panic into an error that is not retried.
func invoke(ctx context.Context, action Action) (panicked bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			panicked = true
			err = fmt.Errorf("compensation panicked: %v", p)
		}
	}()
	return false, action(ctx)
}
