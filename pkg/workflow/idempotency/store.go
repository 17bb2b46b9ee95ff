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

// Package idempotency maps idempotency keys to workflow instances. Reserve is
// the single atomic admission point for a key; Save records progress with
// optimistic concurrency.
package idempotency

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/workflow"
)

var (
	// ErrNotFound is returned when no instance exists for a key.
	ErrNotFound = errors.New("idempotency key not found")

	// ErrVersionConflict is returned when Save races another writer.
	ErrVersionConflict = errors.New("instance version conflict")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("idempotency store is closed")

	// ErrInvalidInstance is returned for instances without key or id.
	ErrInvalidInstance = errors.New("instance requires id and idempotency key")
)

// Reservation is the result of Reserve.
type Reservation struct {
	// New is true when the caller created the instance and now owns it.
	New bool
	// Instance is the caller's instance when New, the stored one otherwise.
	Instance *workflow.Instance
}

// Store persists workflow instances keyed by idempotency key.
type Store interface {
	// Reserve atomically stores inst if no instance exists for its key.
	// On success inst.Version becomes 1.
	Reserve(ctx context.Context, inst *workflow.Instance) (Reservation, error)

	// Save records the instance if its Version matches the stored one and
	// increments Version. Terminal outcomes are recorded through Save.
	Save(ctx context.Context, inst *workflow.Instance) error

	// Get returns a copy of the instance for key or ErrNotFound.
	Get(ctx context.Context, key string) (*workflow.Instance, error)

	// Cleanup removes terminal instances last updated before olderThan and
	// returns how many were removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases resources.
	Close() error
}

func validate(inst *workflow.Instance) error {
	if inst == nil || inst.ID == "" || inst.IdempotencyKey == "" {
		return ErrInvalidInstance
	}
	return nil
}

// RunJanitor periodically removes terminal instances older than retention
// until ctx is cancelled.
func RunJanitor(ctx context.Context, store Store, interval, retention time.Duration) {
	if interval <= 0 || retention <= 0 {
		return
	}
	log := logger.GetLogger().Named("idempotency")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.Cleanup(ctx, now.Add(-retention))
			if err != nil {
				log.Warn("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				log.Info("idempotency cleanup removed instances", zap.Int("removed", removed))
			}
		}
	}
}
