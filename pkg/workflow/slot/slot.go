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

// Package slot implements exclusive, time-limited reservations of calendar
// slots. A reservation that is not confirmed within the hold window is
// released automatically; a confirmed slot stays taken.
package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/innovationmech/atelier/pkg/workflow"
)

// DefaultHoldWindow is how long an unconfirmed reservation is kept.
const DefaultHoldWindow = 10 * time.Minute

const dateLayout = "2006-01-02"

var (
	// ErrInvalidKey is returned for malformed slot keys.
	ErrInvalidKey = errors.New("invalid slot key")

	// ErrSlotConfirmed is returned when releasing a slot that was already confirmed.
	ErrSlotConfirmed = errors.New("slot is confirmed and cannot be released")

	// ErrHoldLost is returned when confirming a slot the owner no longer holds,
	// typically because the hold window elapsed.
	ErrHoldLost = fmt.Errorf("%w: slot hold lost", workflow.ErrConflict)
)

// Key identifies a bookable slot.
type Key struct {
	Resource string `json:"resource"`
	Date     string `json:"date"`
	Hour     int    `json:"hour"`
}

// String renders the key as resource/date/hour.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%02d", k.Resource, k.Date, k.Hour)
}

// Validate checks the key fields.
func (k Key) Validate() error {
	if k.Resource == "" {
		return fmt.Errorf("%w: resource is required", ErrInvalidKey)
	}
	if _, err := time.Parse(dateLayout, k.Date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidKey, k.Date)
	}
	if k.Hour < 0 || k.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrInvalidKey, k.Hour)
	}
	return nil
}

// State is the reservation state of a slot.
type State string

const (
	StateFree      State = "free"
	StateReserved  State = "reserved"
	StateConfirmed State = "confirmed"
)

// Hold describes who holds a slot.
type Hold struct {
	Key   Key    `json:"key"`
	State State  `json:"state"`
	Owner string `json:"owner,omitempty"`
	// ExpiresAt is zero for free and confirmed slots.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ReserveResult is the outcome of TryReserve.
type ReserveResult int

const (
	// Reserved means the caller holds the slot.
	Reserved ReserveResult = iota
	// Conflict means another owner holds the slot.
	Conflict
)

// String returns the result name.
func (r ReserveResult) String() string {
	if r == Reserved {
		return "reserved"
	}
	return "conflict"
}

// Manager gates exclusive access to slots. Owners are workflow instance ids.
type Manager interface {
	// TryReserve reserves key for owner. Reserving a slot the owner already
	// holds returns Reserved.
	TryReserve(ctx context.Context, key Key, owner string) (ReserveResult, error)

	// Release frees a reservation held by owner. Releasing a slot the owner
	// does not hold is a no-op; releasing a confirmed slot fails with ErrSlotConfirmed.
	Release(ctx context.Context, key Key, owner string) error

	// Confirm makes owner's reservation permanent. It fails with ErrHoldLost
	// when owner does not hold an active reservation.
	Confirm(ctx context.Context, key Key, owner string) error

	// Status reports the current hold of key.
	Status(ctx context.Context, key Key) (Hold, error)
}
