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

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/innovationmech/atelier/pkg/workflow/retry"
)

// Action performs the forward effect of a step. The returned value is
// recorded as the step result and must be JSON serializable.
type Action func(ctx context.Context, sc *StepContext) (interface{}, error)

// CompensateFunc undoes a succeeded step given its recorded result.
type CompensateFunc func(ctx context.Context, sc *StepContext, result json.RawMessage) error

// Step is one ordered unit of a workflow definition.
type Step struct {
	// Name identifies the step inside its definition.
	Name string

	// Action is the forward effect.
	Action Action

	// Compensate undoes Action. Nil means the step needs no compensation.
	Compensate CompensateFunc

	// Timeout bounds a single attempt. Zero uses the engine default.
	Timeout time.Duration

	// Retry overrides the engine default retry policy.
	Retry retry.Policy

	// FailureCode is reported when the step fails fatally (e.g. PAYMENT_CAPTURE_FAILED).
	FailureCode string

	// Capability, when set, is checked against the submission credential
	// before the step's first attempt.
	Capability string

	// Degradable steps turn a fatal failure into a warning on a successful outcome.
	Degradable bool
}

// Definition is a named ordered list of steps with a typed input.
type Definition struct {
	// Name is the workflow name used on submission.
	Name string

	// NewInput returns a pointer to a zero input struct. The submitted input
	// is decoded into it and validated before an instance is created.
	NewInput func() interface{}

	// Steps run strictly in order.
	Steps []Step

	// IdempotencyKey, when set, derives the key from the validated input.
	// A submission without a key gets the derived one; any other key is rejected.
	IdempotencyKey func(input interface{}) string

	// Summarize builds the aggregate result of a succeeded instance.
	// Nil records a map of step name to step result.
	Summarize func(sc *StepContext) (interface{}, error)
}

// Validate checks the definition is well formed.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("workflow definition requires a name")
	}
	if d.NewInput == nil {
		return fmt.Errorf("workflow %s: NewInput is required", d.Name)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %s: at least one step is required", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return fmt.Errorf("workflow %s: step %d has no name", d.Name, i)
		}
		if step.Action == nil {
			return fmt.Errorf("workflow %s: step %s has no action", d.Name, step.Name)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("workflow %s: duplicate step %s", d.Name, step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}

// StepIndex returns the position of the named step or -1.
func (d *Definition) StepIndex(name string) int {
	for i, step := range d.Steps {
		if step.Name == name {
			return i
		}
	}
	return -1
}

// StepContext gives a step access to its instance input and to the results
// of the steps that ran before it.
type StepContext struct {
	InstanceID     string
	IdempotencyKey string
	Workflow       string
	// Attempt is the 1-based attempt number of the current step.
	Attempt int

	input      json.RawMessage
	results    map[string]json.RawMessage
	credential string
}

// NewStepContext builds a step context from an instance and the credential of
// the current submission.
func NewStepContext(inst *Instance, credential string) *StepContext {
	sc := &StepContext{
		InstanceID:     inst.ID,
		IdempotencyKey: inst.IdempotencyKey,
		Workflow:       inst.Workflow,
		input:          inst.Input,
		results:        make(map[string]json.RawMessage),
		credential:     credential,
	}
	for _, record := range inst.Steps {
		if record.Outcome == StepSucceeded {
			sc.results[record.Name] = record.Result
		}
	}
	return sc
}

// Credential returns the opaque credential supplied with the submission.
func (sc *StepContext) Credential() string {
	return sc.credential
}

// DecodeInput decodes the instance input into v.
func (sc *StepContext) DecodeInput(v interface{}) error {
	if len(sc.input) == 0 {
		return errors.New("instance has no input")
	}
	return json.Unmarshal(sc.input, v)
}

// SetResult records the result of a succeeded step.
func (sc *StepContext) SetResult(step string, result json.RawMessage) {
	sc.results[step] = result
}

// Result decodes the recorded result of an earlier step into v.
func (sc *StepContext) Result(step string, v interface{}) error {
	raw, ok := sc.results[step]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoResult, step)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// HasResult reports whether the named step succeeded.
func (sc *StepContext) HasResult(step string) bool {
	_, ok := sc.results[step]
	return ok
}

// Results returns the recorded results keyed by step name.
func (sc *StepContext) Results() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(sc.results))
	for k, v := range sc.results {
		out[k] = v
	}
	return out
}

// RecordID derives a stable id for a record created by the named step of
// this instance, so a retried step writes the same record.
func (sc *StepContext) RecordID(step string) uuid.UUID {
	return uuid.NewSHA1(instanceNamespace, []byte(sc.InstanceID+"/"+step))
}

// Decode decodes a raw step result into a T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, ErrNoResult
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}

// ResultOf decodes the recorded result of an earlier step into a T.
func ResultOf[T any](sc *StepContext, step string) (T, error) {
	var out T
	err := sc.Result(step, &out)
	return out, err
}

// InputOf decodes the instance input into a T.
func InputOf[T any](sc *StepContext) (T, error) {
	var out T
	err := sc.DecodeInput(&out)
	return out, err
}
