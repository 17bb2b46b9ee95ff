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

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/pkg/workflow"
	"github.com/innovationmech/atelier/pkg/workflow/retry"
)

// StepOutcomeKind classifies a single step attempt.
type StepOutcomeKind int

const (
	// StepSuccess means the action returned a value.
	StepSuccess StepOutcomeKind = iota
	// StepRetryableFailure means another attempt may succeed.
	StepRetryableFailure
	// StepFatalFailure means the step cannot succeed.
	StepFatalFailure
)

// String returns the outcome name.
func (k StepOutcomeKind) String() string {
	switch k {
	case StepSuccess:
		return "success"
	case StepRetryableFailure:
		return "retryable_failure"
	default:
		return "fatal_failure"
	}
}

// StepOutcome is the result of Execute or Run.
type StepOutcome struct {
	Kind     StepOutcomeKind
	Value    json.RawMessage
	Err      *workflow.Error
	Attempts int
}

// stepExecutor is the only place step side effects are performed. It applies
// the per-step timeout and, in Run, the retry policy.
type stepExecutor struct {
	defaultPolicy  retry.Policy
	defaultTimeout time.Duration
	metrics        MetricsCollector
	logger         *zap.Logger
	tracer         trace.Tracer
	sleep          func(d time.Duration)
}

// Execute performs one attempt of step and classifies the result.
func (x *stepExecutor) Execute(ctx context.Context, step *workflow.Step, sc *workflow.StepContext) (out StepOutcome) {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = x.defaultTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stepCtx, span := x.tracer.Start(stepCtx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.name", sc.Workflow),
			attribute.String("workflow.instance_id", sc.InstanceID),
			attribute.String("workflow.step", step.Name),
			attribute.Int("workflow.attempt", sc.Attempt),
		))
	started := time.Now()
	defer func() {
		success := out.Kind == StepSuccess
		x.metrics.RecordStepAttempt(sc.Workflow, step.Name, success, time.Since(started))
		if !success && out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Message)
		}
		span.End()
	}()

	defer func() {
		if r := recover(); r != nil {
			out = StepOutcome{
				Kind: StepFatalFailure,
				Err: workflow.NewStepError(workflow.KindFatal, step.Name, step.FailureCode,
					workflow.ReasonNonRetryable, sc.Attempt, fmt.Errorf("step panicked: %v", r)),
			}
		}
	}()

	value, err := step.Action(stepCtx, sc)
	if err == nil {
		raw, mErr := json.Marshal(value)
		if mErr != nil {
			return StepOutcome{
				Kind: StepFatalFailure,
				Err: workflow.NewStepError(workflow.KindFatal, step.Name, step.FailureCode,
					workflow.ReasonNonRetryable, sc.Attempt, fmt.Errorf("encode step result: %w", mErr)),
			}
		}
		return StepOutcome{Kind: StepSuccess, Value: raw}
	}

	return classify(stepCtx, step, sc.Attempt, err)
}

func classify(stepCtx context.Context, step *workflow.Step, attempt int, err error) StepOutcome {
	switch {
	case workflow.IsConflict(err):
		return StepOutcome{
			Kind: StepFatalFailure,
			Err:  workflow.NewStepError(workflow.KindConflict, step.Name, step.FailureCode, workflow.ReasonContention, attempt, err),
		}
	case workflow.IsPermanent(err):
		return StepOutcome{
			Kind: StepFatalFailure,
			Err:  workflow.NewStepError(workflow.KindFatal, step.Name, step.FailureCode, workflow.ReasonNonRetryable, attempt, err),
		}
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return StepOutcome{
			Kind: StepRetryableFailure,
			Err:  workflow.NewStepError(workflow.KindTransient, step.Name, step.FailureCode, workflow.ReasonTimeout, attempt, err),
		}
	default:
		return StepOutcome{
			Kind: StepRetryableFailure,
			Err:  workflow.NewStepError(workflow.KindTransient, step.Name, step.FailureCode, workflow.ReasonError, attempt, err),
		}
	}
}

// Run executes step until it succeeds, fails fatally or exhausts its retry
// policy. Exhausted retryable failures are reported as fatal. onRetry is
// called before each wait.
func (x *stepExecutor) Run(ctx context.Context, step *workflow.Step, sc *workflow.StepContext, onRetry func(attempt int, err *workflow.Error)) StepOutcome {
	policy := step.Retry
	if policy == nil {
		policy = x.defaultPolicy
	}

	for attempt := 1; ; attempt++ {
		sc.Attempt = attempt
		out := x.Execute(ctx, step, sc)
		out.Attempts = attempt

		switch out.Kind {
		case StepSuccess:
			return out
		case StepFatalFailure:
			out.Err.Attempts = attempt
			return out
		}

		if !policy.ShouldRetry(out.Err, attempt) {
			reason := out.Err.Reason
			if policy.MaxAttempts() > 1 {
				reason = workflow.ReasonRetriesExhausted
			}
			fatal := workflow.NewStepError(workflow.KindFatal, step.Name, step.FailureCode, reason, attempt, out.Err.Unwrap())
			fatal.WithDetail("last_reason", string(out.Err.Reason))
			return StepOutcome{Kind: StepFatalFailure, Err: fatal, Attempts: attempt}
		}

		delay := policy.Delay(attempt)
		x.logger.Warn("step attempt failed, retrying",
			zap.String("workflow", sc.Workflow),
			zap.String("instance_id", sc.InstanceID),
			zap.String("step", step.Name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("reason", string(out.Err.Reason)),
			zap.String("error", out.Err.Message))
		x.metrics.RecordStepRetry(sc.Workflow, step.Name)
		if onRetry != nil {
			onRetry(attempt, out.Err)
		}
		x.sleep(delay)
	}
}
