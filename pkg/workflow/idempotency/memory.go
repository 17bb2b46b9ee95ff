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
	"sync"
	"time"

	"github.com/innovationmech/atelier/pkg/workflow"
)

// MemoryStore is an in-process Store. Instances are kept as deep copies so
// callers never share memory with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*workflow.Instance
	closed    bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]*workflow.Instance)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(ctx context.Context, inst *workflow.Instance) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	if err := validate(inst); err != nil {
		return Reservation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Reservation{}, ErrStoreClosed
	}

	if existing, ok := s.instances[inst.IdempotencyKey]; ok {
		return Reservation{Instance: existing.Clone()}, nil
	}
	inst.Version = 1
	s.instances[inst.IdempotencyKey] = inst.Clone()
	return Reservation{New: true, Instance: inst}, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, inst *workflow.Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(inst); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	stored, ok := s.instances[inst.IdempotencyKey]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != inst.Version {
		return ErrVersionConflict
	}
	inst.Version++
	s.instances[inst.IdempotencyKey] = inst.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (*workflow.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	inst, ok := s.instances[key]
	if !ok {
		return nil, ErrNotFound
	}
	return inst.Clone(), nil
}

// Cleanup implements Store.
func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	removed := 0
	for key, inst := range s.instances {
		if inst.Status.IsTerminal() && inst.UpdatedAt.Before(olderThan) {
			delete(s.instances, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored instances.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.instances = make(map[string]*workflow.Instance)
	return nil
}
