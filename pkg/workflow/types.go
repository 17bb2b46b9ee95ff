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

// Package workflow defines the instance model, step contracts and error
// taxonomy shared by the orchestration engine and its backends.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a workflow instance.
type Status int

const (
	// StatusPending indicates the instance has been admitted but no step has run.
	StatusPending Status = iota

	// StatusRunning indicates steps are being executed.
	StatusRunning

	// StatusSucceeded indicates every step completed; this is terminal.
	StatusSucceeded

	// StatusFailed indicates a step failed fatally.
	StatusFailed

	// StatusCompensating indicates recorded compensations are being executed.
	StatusCompensating

	// StatusCompensated indicates all compensations were attempted; this is terminal.
	StatusCompensated
)

var statusNames = map[Status]string{
	StatusPending:      "pending",
	StatusRunning:      "running",
	StatusSucceeded:    "succeeded",
	StatusFailed:       "failed",
	StatusCompensating: "compensating",
	StatusCompensated:  "compensated",
}

// String returns the string representation of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStatus converts a status name back to a Status.
func ParseStatus(name string) (Status, error) {
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return StatusPending, fmt.Errorf("unknown workflow status %q", name)
}

// IsTerminal reports whether no further forward progress will be made.
// A failed instance is terminal for callers even while compensation is pending.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCompensated
}

// IsActive reports whether the instance is being driven.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning || s == StatusCompensating
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Transitions are monotone: Pending → Running → (Succeeded | Failed),
// Failed → Compensating → Compensated.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusSucceeded || next == StatusFailed
	case StatusFailed:
		return next == StatusCompensating
	case StatusCompensating:
		return next == StatusCompensated
	default:
		return false
	}
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StepOutcome is the recorded result of a single step.
type StepOutcome string

const (
	StepNotStarted StepOutcome = "not_started"
	StepSucceeded  StepOutcome = "succeeded"
	StepFailed     StepOutcome = "failed"
)

// CompensationStatus tracks whether a succeeded step was undone.
type CompensationStatus string

const (
	CompensationNone      CompensationStatus = ""
	CompensationDone      CompensationStatus = "compensated"
	CompensationFailedRun CompensationStatus = "failed"
)

// StepRecord is the persisted progress of one step of an instance.
type StepRecord struct {
	Name     string          `json:"name"`
	Attempts int             `json:"attempts"`
	Outcome  StepOutcome     `json:"outcome"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *Error          `json:"error,omitempty"`

	// Compensable is set when the step succeeded and defines a compensation.
	Compensable       bool               `json:"compensable,omitempty"`
	Compensation      CompensationStatus `json:"compensation,omitempty"`
	CompensationError string             `json:"compensation_error,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CompensationFailure is kept on the instance for manual reconciliation.
type CompensationFailure struct {
	Step     string    `json:"step"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

// Instance is one execution of a workflow definition, keyed by an idempotency key.
// Credentials supplied with a submission are never stored on it.
type Instance struct {
	ID                   string                `json:"id"`
	IdempotencyKey       string                `json:"idempotency_key"`
	Workflow             string                `json:"workflow"`
	Status               Status                `json:"status"`
	Input                json.RawMessage       `json:"input,omitempty"`
	Steps                []*StepRecord         `json:"steps"`
	Result               json.RawMessage       `json:"result,omitempty"`
	Failure              *Error                `json:"failure,omitempty"`
	Warnings             []string              `json:"warnings,omitempty"`
	CompensationFailures []CompensationFailure `json:"compensation_failures,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
	// Version is incremented by every successful save and guards against
	// two drivers writing the same instance.
	Version int64 `json:"version"`
}

// instanceNamespace scopes instance ids derived from idempotency keys.
var instanceNamespace = uuid.MustParse("6f1c2d0e-8a4b-5c3d-9e7f-0a1b2c3d4e5f")

// InstanceID derives the stable instance id for an idempotency key.
func InstanceID(idempotencyKey string) string {
	return uuid.NewSHA1(instanceNamespace, []byte(idempotencyKey)).String()
}

// NewInstance creates a pending instance with one NotStarted record per step.
func NewInstance(def *Definition, idempotencyKey string, input json.RawMessage, now time.Time) *Instance {
	steps := make([]*StepRecord, 0, len(def.Steps))
	for _, step := range def.Steps {
		steps = append(steps, &StepRecord{Name: step.Name, Outcome: StepNotStarted})
	}
	return &Instance{
		ID:             InstanceID(idempotencyKey),
		IdempotencyKey: idempotencyKey,
		Workflow:       def.Name,
		Status:         StatusPending,
		Input:          input,
		Steps:          steps,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Step returns the record of the named step or nil.
func (i *Instance) Step(name string) *StepRecord {
	for _, record := range i.Steps {
		if record.Name == name {
			return record
		}
	}
	return nil
}

// Transition moves the instance to next, rejecting non-monotone transitions.
func (i *Instance) Transition(next Status, now time.Time) error {
	if !i.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid status transition %s -> %s", i.Status, next)
	}
	i.Status = next
	i.UpdatedAt = now
	return nil
}

// PendingCompensations returns the names of compensable steps that have not
// been compensated yet, in completion order.
func (i *Instance) PendingCompensations() []string {
	var names []string
	for _, record := range i.Steps {
		if record.Outcome == StepSucceeded && record.Compensable && record.Compensation == CompensationNone {
			names = append(names, record.Name)
		}
	}
	return names
}

// Clone returns a deep copy safe to hand to callers.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	data, err := json.Marshal(i)
	if err != nil {
		panic(fmt.Sprintf("workflow: clone instance %s: %v", i.ID, err))
	}
	var out Instance
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("workflow: clone instance %s: %v", i.ID, err))
	}
	return &out
}

// OutcomeKind classifies what a caller observes for a submission.
type OutcomeKind string

const (
	OutcomeSuccess            OutcomeKind = "success"
	OutcomeSuccessWithWarning OutcomeKind = "success_with_warning"
	OutcomeFailure            OutcomeKind = "failure"
	OutcomeConflict           OutcomeKind = "conflict"
)

// Outcome is the terminal result returned by a submission.
type Outcome struct {
	Kind           OutcomeKind     `json:"kind"`
	InstanceID     string          `json:"instance_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Workflow       string          `json:"workflow"`
	Status         Status          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	// Replayed is set when the outcome was served from a previous execution.
	Replayed bool `json:"replayed"`
}

// Succeeded reports whether the outcome is a success with or without warnings.
func (o *Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomeSuccessWithWarning
}

// Outcome derives the caller-visible outcome of a terminal instance.
func (i *Instance) Outcome() *Outcome {
	out := &Outcome{
		InstanceID:     i.ID,
		IdempotencyKey: i.IdempotencyKey,
		Workflow:       i.Workflow,
		Status:         i.Status,
		Result:         i.Result,
		Warnings:       append([]string(nil), i.Warnings...),
		Error:          i.Failure,
	}
	switch {
	case i.Status == StatusSucceeded && len(i.Warnings) > 0:
		out.Kind = OutcomeSuccessWithWarning
	case i.Status == StatusSucceeded:
		out.Kind = OutcomeSuccess
	case i.Failure != nil && i.Failure.Kind == KindConflict:
		out.Kind = OutcomeConflict
	default:
		out.Kind = OutcomeFailure
	}
	return out
}
