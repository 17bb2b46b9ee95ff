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
	"time"
)

// CapabilityChecker validates an opaque submission credential against a
// named capability such as "catalog:write".
type CapabilityChecker interface {
	Check(ctx context.Context, credential, capability string) error
}

// EventType identifies a workflow lifecycle event.
type EventType string

const (
	EventInstanceStarted     EventType = "workflow.started"
	EventStepSucceeded       EventType = "workflow.step.succeeded"
	EventStepFailed          EventType = "workflow.step.failed"
	EventInstanceSucceeded   EventType = "workflow.succeeded"
	EventInstanceFailed      EventType = "workflow.failed"
	EventInstanceCompensated EventType = "workflow.compensated"
)

// Event is a lifecycle notification emitted by the engine.
type Event struct {
	Type           EventType `json:"type"`
	InstanceID     string    `json:"instance_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Workflow       string    `json:"workflow"`
	Step           string    `json:"step,omitempty"`
	Status         Status    `json:"status"`
	Error          *Error    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventPublisher delivers lifecycle events. Publishing is best-effort; the
// engine logs and ignores publish errors.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards events.
type NoopPublisher struct{}

// Publish implements EventPublisher.
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// AllowAll is a CapabilityChecker granting every capability.
type AllowAll struct{}

// Check implements CapabilityChecker.
func (AllowAll) Check(context.Context, string, string) error { return nil }
