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

package slot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/innovationmech/atelier/pkg/logger"
)

// MemoryOption configures a MemoryManager.
type MemoryOption func(*MemoryManager)

// WithHoldWindow overrides the hold window.
func WithHoldWindow(d time.Duration) MemoryOption {
	return func(m *MemoryManager) {
		if d > 0 {
			m.holdWindow = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSweepInterval sets how often Start purges expired holds.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *MemoryManager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// MemoryManager is an in-process Manager. Expired holds are treated as free
// on access and purged by the sweeper started with Start.
type MemoryManager struct {
	mu            sync.Mutex
	holds         map[Key]*Hold
	holdWindow    time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewMemoryManager creates a memory-backed slot manager.
func NewMemoryManager(opts ...MemoryOption) *MemoryManager {
	m := &MemoryManager{
		holds:         make(map[Key]*Hold),
		holdWindow:    DefaultHoldWindow,
		sweepInterval: time.Minute,
		now:           time.Now,
		logger:        logger.GetLogger().Named("slot"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HoldWindow returns the configured hold window.
func (m *MemoryManager) HoldWindow() time.Duration {
	return m.holdWindow
}

// active returns the hold of key if it is confirmed or not yet expired.
// Callers hold m.mu.
func (m *MemoryManager) active(key Key) *Hold {
	hold, ok := m.holds[key]
	if !ok {
		return nil
	}
	if hold.State == StateReserved && !m.now().Before(hold.ExpiresAt) {
		delete(m.holds, key)
		m.logger.Info("slot hold expired",
			zap.String("slot", key.String()),
			zap.String("owner", hold.Owner))
		return nil
	}
	return hold
}

// TryReserve implements Manager.
func (m *MemoryManager) TryReserve(ctx context.Context, key Key, owner string) (ReserveResult, error) {
	if err := ctx.Err(); err != nil {
		return Conflict, err
	}
	if err := key.Validate(); err != nil {
		return Conflict, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if hold := m.active(key); hold != nil {
		if hold.Owner == owner {
			return Reserved, nil
		}
		return Conflict, nil
	}
	m.holds[key] = &Hold{
		Key:       key,
		State:     StateReserved,
		Owner:     owner,
		ExpiresAt: m.now().Add(m.holdWindow),
	}
	return Reserved, nil
}

// Release implements Manager.
func (m *MemoryManager) Release(ctx context.Context, key Key, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hold := m.active(key)
	if hold == nil || hold.Owner != owner {
		return nil
	}
	if hold.State == StateConfirmed {
		return ErrSlotConfirmed
	}
	delete(m.holds, key)
	return nil
}

// Confirm implements Manager.
func (m *MemoryManager) Confirm(ctx context.Context, key Key, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hold := m.active(key)
	if hold == nil || hold.Owner != owner {
		return ErrHoldLost
	}
	hold.State = StateConfirmed
	hold.ExpiresAt = time.Time{}
	return nil
}

// Status implements Manager.
func (m *MemoryManager) Status(ctx context.Context, key Key) (Hold, error) {
	if err := ctx.Err(); err != nil {
		return Hold{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if hold := m.active(key); hold != nil {
		return *hold, nil
	}
	return Hold{Key: key, State: StateFree}, nil
}

// Sweep purges expired holds and returns how many were removed.
func (m *MemoryManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.holds {
		if m.holds[key].State == StateReserved && m.active(key) == nil {
			removed++
		}
	}
	return removed
}

// Start runs the sweeper until ctx is cancelled.
func (m *MemoryManager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := m.Sweep(); removed > 0 {
				m.logger.Debug("released expired slot holds", zap.Int("count", removed))
			}
		}
	}
}
