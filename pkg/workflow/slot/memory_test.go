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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var room14 = Key{Resource: "room-1", Date: "2024-06-01", Hour: 14}

func newTestManager() (*MemoryManager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC)}
	return NewMemoryManager(WithClock(clock.Now)), clock
}

func TestKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{name: "valid", key: room14},
		{name: "no resource", key: Key{Date: "2024-06-01", Hour: 10}, wantErr: true},
		{name: "bad date", key: Key{Resource: "r", Date: "01/06/2024", Hour: 10}, wantErr: true},
		{name: "hour too large", key: Key{Resource: "r", Date: "2024-06-01", Hour: 24}, wantErr: true},
		{name: "negative hour", key: Key{Resource: "r", Date: "2024-06-01", Hour: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, "room-1/2024-06-01/14", room14.String())
}

func TestMemoryManager_ExclusiveReservation(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	res, err := m.TryReserve(ctx, room14, "instance-a")
	require.NoError(t, err)
	assert.Equal(t, Reserved, res)

	res, err = m.TryReserve(ctx, room14, "instance-b")
	require.NoError(t, err)
	assert.Equal(t, Conflict, res)

	res, err = m.TryReserve(ctx, room14, "instance-a")
	require.NoError(t, err)
	assert.Equal(t, Reserved, res, "re-reserving by the owner is idempotent")
}

func TestMemoryManager_ConcurrentTryReserve(t *testing.T) {
	m, _ := newTestManager()
	results := make(chan ReserveResult, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup

	for _, owner := range []string{"instance-a", "instance-b"} {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			<-start
			res, err := m.TryReserve(context.Background(), room14, owner)
			assert.NoError(t, err)
			results <- res
		}(owner)
	}
	close(start)
	wg.Wait()
	close(results)

	counts := map[ReserveResult]int{}
	for res := range results {
		counts[res]++
	}
	assert.Equal(t, 1, counts[Reserved])
	assert.Equal(t, 1, counts[Conflict])
}

func TestMemoryManager_HoldWindowAutoRelease(t *testing.T) {
	m, clock := newTestManager()
	ctx := context.Background()

	_, err := m.TryReserve(ctx, room14, "instance-a")
	require.NoError(t, err)

	clock.Advance(DefaultHoldWindow - time.Second)
	hold, err := m.Status(ctx, room14)
	require.NoError(t, err)
	assert.Equal(t, StateReserved, hold.State)

	clock.Advance(2 * time.Second)
	hold, err = m.Status(ctx, room14)
	require.NoError(t, err)
	assert.Equal(t, StateFree, hold.State)

	res, err := m.TryReserve(ctx, room14, "instance-b")
	require.NoError(t, err)
	assert.Equal(t, Reserved, res)

	assert.ErrorIs(t, m.Confirm(ctx, room14, "instance-a"), ErrHoldLost)
}

func TestMemoryManager_ConfirmIsTerminal(t *testing.T) {
	m, clock := newTestManager()
	ctx := context.Background()

	_, err := m.TryReserve(ctx, room14, "instance-a")
	require.NoError(t, err)
	require.NoError(t, m.Confirm(ctx, room14, "instance-a"))

	clock.Advance(24 * time.Hour)
	hold, err := m.Status(ctx, room14)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, hold.State)
	assert.True(t, hold.ExpiresAt.IsZero())

	assert.ErrorIs(t, m.Release(ctx, room14, "instance-a"), ErrSlotConfirmed)

	res, err := m.TryReserve(ctx, room14, "instance-b")
	require.NoError(t, err)
	assert.Equal(t, Conflict, res)
}

func TestMemoryManager_Release(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	_, err := m.TryReserve(ctx, room14, "instance-a")
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, room14, "instance-b"), "foreign release is a no-op")
	hold, _ := m.Status(ctx, room14)
	assert.Equal(t, "instance-a", hold.Owner)

	require.NoError(t, m.Release(ctx, room14, "instance-a"))
	require.NoError(t, m.Release(ctx, room14, "instance-a"), "release is idempotent")

	hold, _ = m.Status(ctx, room14)
	assert.Equal(t, StateFree, hold.State)
}

func TestMemoryManager_Sweep(t *testing.T) {
	m, clock := newTestManager()
	ctx := context.Background()

	_, _ = m.TryReserve(ctx, room14, "a")
	other := Key{Resource: "room-1", Date: "2024-06-01", Hour: 15}
	_, _ = m.TryReserve(ctx, other, "b")
	require.NoError(t, m.Confirm(ctx, other, "b"))

	clock.Advance(DefaultHoldWindow)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 0, m.Sweep())
}

func TestMemoryManager_StartSweepsInBackground(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := NewMemoryManager(WithClock(clock.Now), WithHoldWindow(time.Minute), WithSweepInterval(5*time.Millisecond))
	assert.Equal(t, time.Minute, m.HoldWindow())

	_, err := m.TryReserve(context.Background(), room14, "a")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	assert.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.holds) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryManager_InvalidKey(t *testing.T) {
	m, _ := newTestManager()
	_, err := m.TryReserve(context.Background(), Key{Resource: "r", Date: "bad"}, "a")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
