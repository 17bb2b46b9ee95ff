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

// Package engine drives workflow instances: it admits submissions through the
// idempotency store, executes steps in order through the step executor,
// persists progress and compensates failed instances.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/workflow"
	"github.com/innovationmech/atelier/pkg/workflow/compensation"
	"github.com/innovationmech/atelier/pkg/workflow/idempotency"
	"github.com/innovationmech/atelier/pkg/workflow/retry"
)

const tracerName = "github.com/innovationmech/atelier/pkg/workflow/engine"

var (
	// ErrEngineClosed is returned by Submit after Close.
	ErrEngineClosed = errors.New("workflow engine is closed")

	// ErrInstanceMismatch is returned when a stored instance does not match
	// the steps of its registered definition.
	ErrInstanceMismatch = errors.New("instance does not match workflow definition")
)

// Config holds the engine settings.
type Config struct {
	// Retry is the default step retry configuration.
	Retry retry.Config `mapstructure:"retry"`

	// StepTimeout bounds one step attempt unless the step sets its own.
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	// StaleAfter is how long a non-terminal instance must be idle before
	// Resume may take it over.
	StaleAfter time.Duration `mapstructure:"stale_after"`

	// MaxConcurrent bounds the number of instances driven at once.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Retry:         retry.DefaultConfig(),
		StepTimeout:   30 * time.Second,
		StaleAfter:    5 * time.Minute,
		MaxConcurrent: 64,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.StepTimeout <= 0 {
		return errors.New("step timeout must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return errors.New("max concurrent must be positive")
	}
	return nil
}

// Request is a workflow submission.
type Request struct {
	// Workflow names a registered definition.
	Workflow string
	// IdempotencyKey identifies the business operation; resubmissions with
	// the same key never repeat external effects.
	IdempotencyKey string
	// Input is the definition's input struct, a map, or raw JSON.
	Input interface{}
	// Credential is checked by steps that require a capability. It is never persisted.
	Credential string
}

// Engine executes workflow definitions.
type Engine struct {
	config    Config
	store     idempotency.Store
	registry  *compensation.Registry
	checker   workflow.CapabilityChecker
	publisher workflow.EventPublisher
	metrics   MetricsCollector
	validate  *validator.Validate
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	executor  *stepExecutor

	sem     chan struct{}
	running sync.Map

	mu          sync.RWMutex
	definitions map[string]*workflow.Definition
	closed      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCompensationRegistry sets the compensation registry.
func WithCompensationRegistry(registry *compensation.Registry) Option {
	return func(e *Engine) { e.registry = registry }
}

// WithCapabilityChecker sets the credential checker.
func WithCapabilityChecker(checker workflow.CapabilityChecker) Option {
	return func(e *Engine) { e.checker = checker }
}

// WithEventPublisher sets the lifecycle event publisher.
func WithEventPublisher(publisher workflow.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics MetricsCollector) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracerProvider sets the tracer provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// WithClock sets the time source used for instance timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep replaces the wait between step retries.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.executor.sleep = sleep }
}

// New creates an engine on top of store.
func New(store idempotency.Store, config Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		config:      config,
		store:       store,
		checker:     workflow.AllowAll{},
		publisher:   workflow.NoopPublisher{},
		metrics:     noOpMetricsCollector{},
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.GetLogger().Named("engine"),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		sem:         make(chan struct{}, config.MaxConcurrent),
		definitions: make(map[string]*workflow.Definition),
		executor:    &stepExecutor{sleep: time.Sleep},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = compensation.NewRegistry(compensation.WithLogger(e.logger.Named("compensation")))
	}

	e.executor.defaultPolicy = retry.NewExponentialBackoff(config.Retry)
	e.executor.defaultTimeout = config.StepTimeout
	e.executor.metrics = e.metrics
	e.executor.logger = e.logger
	e.executor.tracer = e.tracer
	return e, nil
}

// Register adds a workflow definition.
func (e *Engine) Register(def *workflow.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.definitions[def.Name]; exists {
		return fmt.Errorf("workflow %s already registered", def.Name)
	}
	e.definitions[def.Name] = def
	return nil
}

// Definitions returns the registered workflow names.
func (e *Engine) Definitions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.definitions))
	for name := range e.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) definition(name string) (*workflow.Definition, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	def, ok := e.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownWorkflow, name)
	}
	return def, nil
}

// Close rejects further submissions. Instances being driven run to completion.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Submit runs a workflow for an idempotency key and returns its terminal
// outcome. A key whose instance already finished returns the stored outcome
// without touching any collaborator; a key whose instance is still running
// returns a Conflict. The returned error is reserved for infrastructure
// failures such as an unavailable store.
func (e *Engine) Submit(ctx context.Context, req Request) (*workflow.Outcome, error) {
	def, err := e.definition(req.Workflow)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "workflow.submit", trace.WithAttributes(
		attribute.String("workflow.name", def.Name),
		attribute.String("workflow.idempotency_key", req.IdempotencyKey),
	))
	defer span.End()

	input, verr := e.decodeInput(def, req.Input)
	if verr != nil {
		return rejected(def.Name, req.IdempotencyKey, verr), nil
	}
	if def.IdempotencyKey != nil {
		key, kerr := boundKey(def, input, req.IdempotencyKey)
		if kerr != nil {
			return rejected(def.Name, req.IdempotencyKey, kerr), nil
		}
		req.IdempotencyKey = key
		span.SetAttributes(attribute.String("workflow.idempotency_key", key))
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return rejected(def.Name, req.IdempotencyKey,
			workflow.NewValidationError("idempotency key is required", nil)), nil
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	inst := workflow.NewInstance(def, req.IdempotencyKey, input, e.now())
	res, err := e.store.Reserve(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}

	if !res.New {
		existing := res.Instance
		span.SetAttributes(attribute.String("workflow.instance_id", existing.ID))
		if existing.Status.IsTerminal() {
			e.metrics.RecordReplay(existing.Workflow)
			e.logger.Info("returning stored outcome",
				zap.String("workflow", existing.Workflow),
				zap.String("instance_id", existing.ID),
				zap.String("status", existing.Status.String()))
			out := existing.Outcome()
			out.Replayed = true
			return out, nil
		}
		return inProgress(existing), nil
	}

	span.SetAttributes(attribute.String("workflow.instance_id", inst.ID))
	return e.drive(ctx, def, inst, req.Credential)
}

// Status returns a snapshot of the instance for an idempotency key.
func (e *Engine) Status(ctx context.Context, idempotencyKey string) (*workflow.Instance, error) {
	return e.store.Get(ctx, idempotencyKey)
}

// Resume continues an instance whose driver went away. Only instances idle
// for longer than StaleAfter are taken over; succeeded steps are not re-run.
// A failed instance with outstanding compensations is compensated.
func (e *Engine) Resume(ctx context.Context, idempotencyKey, credential string) (*workflow.Outcome, error) {
	inst, err := e.store.Get(ctx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	def, err := e.definition(inst.Workflow)
	if err != nil {
		return nil, err
	}
	if _, driving := e.running.Load(inst.ID); driving {
		return inProgress(inst), nil
	}

	switch {
	case inst.Status == workflow.StatusFailed && len(inst.PendingCompensations()) > 0:
	case inst.Status.IsTerminal():
		out := inst.Outcome()
		out.Replayed = true
		return out, nil
	case e.now().Sub(inst.UpdatedAt) < e.config.StaleAfter:
		return inProgress(inst), nil
	}

	// taking ownership is a versioned save; losing it means another driver won
	inst.UpdatedAt = e.now()
	if err := e.store.Save(ctx, inst); err != nil {
		if errors.Is(err, idempotency.ErrVersionConflict) {
			return inProgress(inst), nil
		}
		return nil, err
	}

	e.logger.Info("resuming instance",
		zap.String("workflow", inst.Workflow),
		zap.String("instance_id", inst.ID),
		zap.String("status", inst.Status.String()))

	if inst.Status == workflow.StatusFailed || inst.Status == workflow.StatusCompensating {
		e.running.Store(inst.ID, struct{}{})
		defer e.running.Delete(inst.ID)

		sc := workflow.NewStepContext(inst, credential)
		if err := e.registerCompensations(def, inst, sc); err != nil {
			return nil, err
		}
		return e.compensate(context.WithoutCancel(ctx), inst)
	}
	return e.drive(ctx, def, inst, credential)
}

// drive executes the remaining steps of inst. Caller cancellation does not
// interrupt a started instance; only step timeouts bound its duration.
func (e *Engine) drive(ctx context.Context, def *workflow.Definition, inst *workflow.Instance, credential string) (*workflow.Outcome, error) {
	e.running.Store(inst.ID, struct{}{})
	defer e.running.Delete(inst.ID)

	ctx = context.WithoutCancel(ctx)
	started := e.now()

	if len(inst.Steps) != len(def.Steps) {
		return nil, fmt.Errorf("%w: %s", ErrInstanceMismatch, inst.ID)
	}

	if inst.Status == workflow.StatusPending {
		if err := inst.Transition(workflow.StatusRunning, e.now()); err != nil {
			return nil, err
		}
		if err := e.save(ctx, inst); err != nil {
			return nil, err
		}
		e.metrics.RecordInstanceStarted(def.Name)
		e.publish(ctx, inst, workflow.EventInstanceStarted, "", nil)
	}

	sc := workflow.NewStepContext(inst, credential)
	if err := e.registerCompensations(def, inst, sc); err != nil {
		return nil, err
	}
	checked := make(map[string]bool)

	for i := range def.Steps {
		step := &def.Steps[i]
		record := inst.Steps[i]
		if record.Name != step.Name {
			return nil, fmt.Errorf("%w: step %d is %s, want %s", ErrInstanceMismatch, i, record.Name, step.Name)
		}
		if record.Outcome == workflow.StepSucceeded {
			continue
		}

		if step.Capability != "" && !checked[step.Capability] {
			if err := e.checker.Check(ctx, credential, step.Capability); err != nil {
				werr := workflow.NewUnauthorizedError(step.Name, step.Capability, err)
				record.Outcome = workflow.StepFailed
				record.Error = werr
				e.logger.Warn("capability check failed",
					zap.String("workflow", def.Name),
					zap.String("instance_id", inst.ID),
					zap.String("step", step.Name),
					zap.String("capability", step.Capability))
				return e.fail(ctx, inst, werr, started)
			}
			checked[step.Capability] = true
		}

		startedAt := e.now()
		record.StartedAt = &startedAt
		out := e.executor.Run(ctx, step, sc, func(attempt int, err *workflow.Error) {
			record.Attempts = attempt
			record.Error = err
			if saveErr := e.save(ctx, inst); saveErr != nil {
				e.logger.Warn("failed to persist retry progress",
					zap.String("instance_id", inst.ID),
					zap.String("step", step.Name),
					zap.Error(saveErr))
			}
		})
		completedAt := e.now()
		record.Attempts = out.Attempts
		record.CompletedAt = &completedAt

		if out.Kind == StepSuccess {
			record.Outcome = workflow.StepSucceeded
			record.Result = out.Value
			record.Error = nil
			record.Compensable = step.Compensate != nil
			sc.SetResult(step.Name, out.Value)
			if step.Compensate != nil {
				e.registry.Record(inst.ID, step.Name, e.compensationAction(def, step, sc, out.Value))
			}
			if err := e.save(ctx, inst); err != nil {
				return nil, err
			}
			e.publish(ctx, inst, workflow.EventStepSucceeded, step.Name, nil)
			continue
		}

		record.Outcome = workflow.StepFailed
		record.Error = out.Err
		e.publish(ctx, inst, workflow.EventStepFailed, step.Name, out.Err)

		if step.Degradable {
			inst.Warnings = append(inst.Warnings, fmt.Sprintf("%s: %s", step.Name, out.Err.Message))
			e.logger.Warn("non-critical step failed, continuing",
				zap.String("workflow", def.Name),
				zap.String("instance_id", inst.ID),
				zap.String("step", step.Name),
				zap.String("error", out.Err.Message))
			if err := e.save(ctx, inst); err != nil {
				return nil, err
			}
			continue
		}

		e.logger.Error("step failed",
			zap.String("workflow", def.Name),
			zap.String("instance_id", inst.ID),
			zap.String("step", step.Name),
			zap.String("code", out.Err.Code),
			zap.String("reason", string(out.Err.Reason)),
			zap.Int("attempts", out.Attempts),
			zap.String("error", out.Err.Message))
		return e.fail(ctx, inst, out.Err, started)
	}

	result, err := e.summarize(def, sc)
	if err != nil {
		e.logger.Warn("failed to summarize instance result, recording step results",
			zap.String("instance_id", inst.ID), zap.Error(err))
		result, _ = json.Marshal(sc.Results())
	}
	inst.Result = result
	if err := inst.Transition(workflow.StatusSucceeded, e.now()); err != nil {
		return nil, err
	}
	if err := e.save(ctx, inst); err != nil {
		return nil, err
	}
	e.registry.Forget(inst.ID)

	out := inst.Outcome()
	e.metrics.RecordInstanceFinished(def.Name, out.Kind, e.now().Sub(started))
	e.publish(ctx, inst, workflow.EventInstanceSucceeded, "", nil)
	e.logger.Info("workflow succeeded",
		zap.String("workflow", def.Name),
		zap.String("instance_id", inst.ID),
		zap.Int("warnings", len(inst.Warnings)))
	return out, nil
}

// fail records the failure and compensates the steps that succeeded.
func (e *Engine) fail(ctx context.Context, inst *workflow.Instance, failure *workflow.Error, started time.Time) (*workflow.Outcome, error) {
	inst.Failure = failure
	if err := inst.Transition(workflow.StatusFailed, e.now()); err != nil {
		return nil, err
	}
	if err := e.save(ctx, inst); err != nil {
		return nil, err
	}
	e.publish(ctx, inst, workflow.EventInstanceFailed, failure.Step, failure)

	out, err := e.compensate(ctx, inst)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordInstanceFinished(inst.Workflow, out.Kind, e.now().Sub(started))
	return out, nil
}

// compensate runs the recorded compensations of a failed instance. A failed
// instance with nothing to undo stays Failed.
func (e *Engine) compensate(ctx context.Context, inst *workflow.Instance) (*workflow.Outcome, error) {
	if inst.Status == workflow.StatusFailed && len(e.registry.Pending(inst.ID)) == 0 {
		e.registry.Forget(inst.ID)
		return inst.Outcome(), nil
	}

	if inst.Status == workflow.StatusFailed {
		if err := inst.Transition(workflow.StatusCompensating, e.now()); err != nil {
			return nil, err
		}
		if err := e.save(ctx, inst); err != nil {
			return nil, err
		}
	}

	report := e.registry.Compensate(ctx, inst.ID)
	for _, step := range report.Compensated {
		if record := inst.Step(step); record != nil {
			record.Compensation = workflow.CompensationDone
		}
		e.metrics.RecordCompensation(inst.Workflow, step, true)
	}
	for _, failure := range report.Failures {
		if record := inst.Step(failure.Step); record != nil {
			record.Compensation = workflow.CompensationFailedRun
			record.CompensationError = failure.Err.Error()
		}
		inst.CompensationFailures = append(inst.CompensationFailures, workflow.CompensationFailure{
			Step:     failure.Step,
			Error:    failure.Err.Error(),
			Attempts: failure.Attempts,
			At:       failure.At,
		})
		e.metrics.RecordCompensation(inst.Workflow, failure.Step, false)
	}

	if err := inst.Transition(workflow.StatusCompensated, e.now()); err != nil {
		return nil, err
	}
	if err := e.save(ctx, inst); err != nil {
		return nil, err
	}
	e.publish(ctx, inst, workflow.EventInstanceCompensated, "", inst.Failure)
	e.logger.Info("workflow compensated",
		zap.String("workflow", inst.Workflow),
		zap.String("instance_id", inst.ID),
		zap.Int("compensated", len(report.Compensated)),
		zap.Int("failed", len(report.Failures)))
	return inst.Outcome(), nil
}

// registerCompensations records the compensations of steps that succeeded
// before this driver took over the instance.
func (e *Engine) registerCompensations(def *workflow.Definition, inst *workflow.Instance, sc *workflow.StepContext) error {
	for _, name := range inst.PendingCompensations() {
		idx := def.StepIndex(name)
		if idx < 0 {
			return fmt.Errorf("%w: unknown step %s", ErrInstanceMismatch, name)
		}
		step := &def.Steps[idx]
		if step.Compensate == nil {
			continue
		}
		e.registry.Record(inst.ID, name, e.compensationAction(def, step, sc, inst.Step(name).Result))
	}
	return nil
}

func (e *Engine) compensationAction(def *workflow.Definition, step *workflow.Step, sc *workflow.StepContext, result json.RawMessage) compensation.Action {
	return func(ctx context.Context) error {
		timeout := step.Timeout
		if timeout <= 0 {
			timeout = e.config.StepTimeout
		}
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		stepCtx, span := e.tracer.Start(stepCtx, "workflow.compensate", trace.WithAttributes(
			attribute.String("workflow.name", def.Name),
			attribute.String("workflow.instance_id", sc.InstanceID),
			attribute.String("workflow.step", step.Name),
		))
		defer span.End()

		err := step.Compensate(stepCtx, sc, result)
		if err != nil {
			span.RecordError(err)
		}
		return err
	}
}

func (e *Engine) summarize(def *workflow.Definition, sc *workflow.StepContext) (json.RawMessage, error) {
	if def.Summarize == nil {
		return json.Marshal(sc.Results())
	}
	value, err := def.Summarize(sc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

func (e *Engine) save(ctx context.Context, inst *workflow.Instance) error {
	inst.UpdatedAt = e.now()
	if err := e.store.Save(ctx, inst); err != nil {
		return fmt.Errorf("persist instance %s: %w", inst.ID, err)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, inst *workflow.Instance, eventType workflow.EventType, step string, failure *workflow.Error) {
	event := workflow.Event{
		Type:           eventType,
		InstanceID:     inst.ID,
		IdempotencyKey: inst.IdempotencyKey,
		Workflow:       inst.Workflow,
		Step:           step,
		Status:         inst.Status,
		Error:          failure,
		Timestamp:      e.now(),
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish workflow event",
			zap.String("type", string(eventType)),
			zap.String("instance_id", inst.ID),
			zap.Error(err))
	}
}

// decodeInput decodes the submitted input into the definition's input type,
// validates it and returns its canonical JSON.
func (e *Engine) decodeInput(def *workflow.Definition, input interface{}) (json.RawMessage, *workflow.Error) {
	var raw []byte
	switch v := input.(type) {
	case nil:
		raw = []byte("{}")
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, workflow.NewValidationError("input is not serializable", err)
		}
		raw = encoded
	}

	target := def.NewInput()
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, workflow.NewValidationError("input is malformed", err)
	}
	if err := e.validate.Struct(target); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fields := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return nil, workflow.NewValidationError("input is invalid: "+strings.Join(fields, ", "), err)
		}
		return nil, workflow.NewValidationError("input is invalid", err)
	}
	if v, ok := target.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, workflow.NewValidationError(err.Error(), err)
		}
	}

	canonical, err := json.Marshal(target)
	if err != nil {
		return nil, workflow.NewValidationError("input is not serializable", err)
	}
	return canonical, nil
}

// boundKey returns the key derived from input. A caller key that differs
// from it is rejected, so one business entity maps to one instance.
func boundKey(def *workflow.Definition, input json.RawMessage, key string) (string, *workflow.Error) {
	target := def.NewInput()
	if err := json.Unmarshal(input, target); err != nil {
		return "", workflow.NewValidationError("input is malformed", err)
	}
	derived := def.IdempotencyKey(target)
	if key != "" && key != derived {
		return "", workflow.NewValidationError(
			fmt.Sprintf("idempotency key for this input must be %q", derived), nil)
	}
	return derived, nil
}

func rejected(workflowName, key string, err *workflow.Error) *workflow.Outcome {
	return &workflow.Outcome{
		Kind:           workflow.OutcomeFailure,
		IdempotencyKey: key,
		Workflow:       workflowName,
		Status:         workflow.StatusFailed,
		Error:          err,
	}
}

func inProgress(inst *workflow.Instance) *workflow.Outcome {
	return &workflow.Outcome{
		Kind:           workflow.OutcomeConflict,
		InstanceID:     inst.ID,
		IdempotencyKey: inst.IdempotencyKey,
		Workflow:       inst.Workflow,
		Status:         inst.Status,
		Error:          workflow.NewInProgressError(inst.IdempotencyKey),
	}
}
