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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// slotKeyPattern is the key of a slot: {prefix}slot:{resource}:{date}:{hour}
const slotKeyPattern = "%sslot:%s:%s:%02d"

const (
	reservedPrefix  = "reserved:"
	confirmedPrefix = "confirmed:"
)

// releaseScript deletes the key only when ARGV[1] (reserved:owner) holds it.
// Returns 1 when released, -1 when the owner already confirmed, 0 otherwise.
var releaseScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
if v == ARGV[2] then
	return -1
end
return 0
`)

// confirmScript replaces reserved:owner with confirmed:owner and drops the TTL.
// Returns 1 when the owner holds a confirmed slot afterwards, 0 otherwise.
var confirmScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[2])
	return 1
end
if v == ARGV[2] then
	return 1
end
return 0
`)

// RedisManager is a Manager shared by several processes. The hold window is
// the key TTL, so expired reservations disappear without a sweeper.
type RedisManager struct {
	client     redis.Cmdable
	keyPrefix  string
	holdWindow time.Duration
}

// NewRedisManager creates a Redis-backed slot manager.
func NewRedisManager(client redis.Cmdable, keyPrefix string, holdWindow time.Duration) *RedisManager {
	if holdWindow <= 0 {
		holdWindow = DefaultHoldWindow
	}
	return &RedisManager{client: client, keyPrefix: keyPrefix, holdWindow: holdWindow}
}

func (m *RedisManager) key(k Key) string {
	return fmt.Sprintf(slotKeyPattern, m.keyPrefix, k.Resource, k.Date, k.Hour)
}

// TryReserve implements Manager.
func (m *RedisManager) TryReserve(ctx context.Context, key Key, owner string) (ReserveResult, error) {
	if err := key.Validate(); err != nil {
		return Conflict, err
	}

	redisKey := m.key(key)
	created, err := m.client.SetNX(ctx, redisKey, reservedPrefix+owner, m.holdWindow).Result()
	if err != nil {
		return Conflict, fmt.Errorf("failed to reserve slot %s: %w", key, err)
	}
	if created {
		return Reserved, nil
	}

	current, err := m.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return m.TryReserve(ctx, key, owner)
	}
	if err != nil {
		return Conflict, fmt.Errorf("failed to read slot %s: %w", key, err)
	}
	if current == reservedPrefix+owner || current == confirmedPrefix+owner {
		return Reserved, nil
	}
	return Conflict, nil
}

// Release implements Manager.
func (m *RedisManager) Release(ctx context.Context, key Key, owner string) error {
	res, err := releaseScript.Run(ctx, m.client, []string{m.key(key)},
		reservedPrefix+owner, confirmedPrefix+owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release slot %s: %w", key, err)
	}
	if res == -1 {
		return ErrSlotConfirmed
	}
	return nil
}

// Confirm implements Manager.
func (m *RedisManager) Confirm(ctx context.Context, key Key, owner string) error {
	res, err := confirmScript.Run(ctx, m.client, []string{m.key(key)},
		reservedPrefix+owner, confirmedPrefix+owner).Int()
	if err != nil {
		return fmt.Errorf("failed to confirm slot %s: %w", key, err)
	}
	if res != 1 {
		return ErrHoldLost
	}
	return nil
}

// Status implements Manager.
func (m *RedisManager) Status(ctx context.Context, key Key) (Hold, error) {
	redisKey := m.key(key)
	current, err := m.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return Hold{Key: key, State: StateFree}, nil
	}
	if err != nil {
		return Hold{}, fmt.Errorf("failed to read slot %s: %w", key, err)
	}

	switch {
	case strings.HasPrefix(current, confirmedPrefix):
		return Hold{Key: key, State: StateConfirmed, Owner: strings.TrimPrefix(current, confirmedPrefix)}, nil
	case strings.HasPrefix(current, reservedPrefix):
		hold := Hold{Key: key, State: StateReserved, Owner: strings.TrimPrefix(current, reservedPrefix)}
		if ttl, err := m.client.PTTL(ctx, redisKey).Result(); err == nil && ttl > 0 {
			hold.ExpiresAt = time.Now().Add(ttl)
		}
		return hold, nil
	default:
		return Hold{}, fmt.Errorf("unexpected value for slot %s", key)
	}
}
