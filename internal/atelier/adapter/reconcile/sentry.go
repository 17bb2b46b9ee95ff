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

// Package reconcile reports compensations that could not be completed so an
// operator can finish them by hand.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/workflow/compensation"
)

// Config configures the Sentry client.
type Config struct {
	DSN         string
	Environment string
	Release     string
}

// SentryReporter implements compensation.Reporter by capturing one Sentry
// event per failed compensation. Every failure is also logged.
type SentryReporter struct {
	hub    *sentry.Hub
	logger *zap.Logger
}

// NewSentryReporter creates a reporter with its own Sentry client.
func NewSentryReporter(cfg Config) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       1.0,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	return NewReporterWithHub(sentry.NewHub(client, sentry.NewScope())), nil
}

// NewReporterWithHub creates a reporter on an existing hub. A nil hub only logs.
func NewReporterWithHub(hub *sentry.Hub) *SentryReporter {
	return &SentryReporter{hub: hub, logger: logger.GetLogger().Named("reconcile")}
}

// ReportCompensationFailure implements compensation.Reporter.
func (r *SentryReporter) ReportCompensationFailure(_ context.Context, failure compensation.Failure) {
	r.logger.Error("compensation requires manual reconciliation",
		zap.String("instance_id", failure.InstanceID),
		zap.String("step", failure.Step),
		zap.Int("attempts", failure.Attempts),
		zap.Error(failure.Err),
	)
	if r.hub == nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("component", "compensation")
		scope.SetTag("step", failure.Step)
		scope.SetContext("compensation", sentry.Context{
			"instance_id": failure.InstanceID,
			"step":        failure.Step,
			"attempts":    failure.Attempts,
			"failed_at":   failure.At.Format(time.RFC3339),
		})
		r.hub.CaptureException(fmt.Errorf("compensate %s for instance %s: %w", failure.Step, failure.InstanceID, failure.Err))
	})
}

// Flush waits for buffered events to be sent.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	if r.hub == nil {
		return true
	}
	return r.hub.Flush(timeout)
}
