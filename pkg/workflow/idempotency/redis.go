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

package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/innovationmech/atelier/pkg/workflow"
)

// instanceKeyPattern is the key of an instance: {prefix}idem:{idempotencyKey}
const instanceKeyPattern = "%sidem:%s"

// RedisClient is the subset of go-redis used by RedisStore.
type RedisClient interface {
	redis.Cmdable
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
	Close() error
}

// RedisStore keeps instances as JSON values. Admission uses SET NX and saves
// use WATCH/MULTI so concurrent writers from several processes are detected.
// Retention is enforced by key TTL.
type RedisStore struct {
	client    RedisClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a store on top of an existing client. A zero ttl
// keeps instances forever.
func NewRedisStore(client RedisClient, keyPrefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisStore) key(idempotencyKey string) string {
	return fmt.Sprintf(instanceKeyPattern, s.keyPrefix, idempotencyKey)
}

// Reserve implements Store.
func (s *RedisStore) Reserve(ctx context.Context, inst *workflow.Instance) (Reservation, error) {
	if err := validate(inst); err != nil {
		return Reservation{}, err
	}

	candidate := *inst
	candidate.Version = 1
	data, err := json.Marshal(&candidate)
	if err != nil {
		return Reservation{}, fmt.Errorf("failed to serialize instance: %w", err)
	}

	key := s.key(inst.IdempotencyKey)
	// the existing key can expire between SETNX and GET; one more round settles it
	for round := 0; round < 2; round++ {
		created, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("failed to reserve key: %w", err)
		}
		if created {
			inst.Version = 1
			return Reservation{New: true, Instance: inst}, nil
		}

		existing, err := s.Get(ctx, inst.IdempotencyKey)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Reservation{}, err
		}
		return Reservation{Instance: existing}, nil
	}
	return Reservation{}, fmt.Errorf("failed to reserve key %s: key churned", inst.IdempotencyKey)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, inst *workflow.Instance) error {
	if err := validate(inst); err != nil {
		return err
	}

	next := *inst
	next.Version = inst.Version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to serialize instance: %w", err)
	}

	key := s.key(inst.IdempotencyKey)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("failed to decode stored instance: %w", err)
		}
		if stored.Version != inst.Version {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		inst.Version = next.Version
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	default:
		return err
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (*workflow.Instance, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}
	var inst workflow.Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, fmt.Errorf("failed to decode instance: %w", err)
	}
	return &inst, nil
}

// Cleanup implements Store. Redis expires instances by TTL, so there is
// nothing to sweep.
func (s *RedisStore) Cleanup(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
