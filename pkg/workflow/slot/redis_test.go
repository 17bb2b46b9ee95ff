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
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisManager(t *testing.T, hold time.Duration) *RedisManager {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis is not available for testing:", err)
	}

	prefix := fmt.Sprintf("test:atelier:%d:", time.Now().UnixNano())
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		_ = client.Close()
	})
	return NewRedisManager(client, prefix, hold)
}

func TestRedisManager_KeyLayout(t *testing.T) {
	m := NewRedisManager(nil, "atelier:", time.Minute)
	assert.Equal(t, "atelier:slot:room-1:2024-06-01:14", m.key(room14))
}

func TestRedisManager_ReserveConfirmRelease(t *testing.T) {
	m := newTestRedisManager(t, time.Minute)
	ctx := context.Background()

	res, err := m.TryReserve(ctx, room14, "a")
	require.NoError(t, err)
	assert.Equal(t, Reserved, res)

	res, err = m.TryReserve(ctx, room14, "b")
	require.NoError(t, err)
	assert.Equal(t, Conflict, res)

	hold, err := m.Status(ctx, room14)
	require.NoError(t, err)
	assert.Equal(t, StateReserved, hold.State)
	assert.Equal(t, "a", hold.Owner)
	assert.False(t, hold.ExpiresAt.IsZero())

	assert.ErrorIs(t, m.Confirm(ctx, room14, "b"), ErrHoldLost)
	require.NoError(t, m.Confirm(ctx, room14, "a"))
	require.NoError(t, m.Confirm(ctx, room14, "a"))
	assert.ErrorIs(t, m.Release(ctx, room14, "a"), ErrSlotConfirmed)
	require.NoError(t, m.Release(ctx, room14, "b"))

	hold, err = m.Status(ctx, room14)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, hold.State)
}

func TestRedisManager_HoldExpires(t *testing.T) {
	m := newTestRedisManager(t, 100*time.Millisecond)
	ctx := context.Background()

	_, err := m.TryReserve(ctx, room14, "a")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		hold, err := m.Status(ctx, room14)
		return err == nil && hold.State == StateFree
	}, 2*time.Second, 20*time.Millisecond)

	res, err := m.TryReserve(ctx, room14, "b")
	require.NoError(t, err)
	assert.Equal(t, Reserved, res)
}
