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

package workflows

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/internal/atelier/model"
	"github.com/innovationmech/atelier/pkg/workflow"
	"github.com/innovationmech/atelier/pkg/workflow/compensation"
	"github.com/innovationmech/atelier/pkg/workflow/engine"
	"github.com/innovationmech/atelier/pkg/workflow/idempotency"
	"github.com/innovationmech/atelier/pkg/workflow/retry"
	"github.com/innovationmech/atelier/pkg/workflow/slot"
)

type mockAssets struct {
	mock.Mock
}

func (m *mockAssets) Upload(ctx context.Context, asset interfaces.Asset, publicID string) (interfaces.AssetReference, error) {
	args := m.Called(ctx, asset, publicID)
	return args.Get(0).(interfaces.AssetReference), args.Error(1)
}

func (m *mockAssets) Delete(ctx context.Context, publicID string, kind interfaces.AssetKind) error {
	return m.Called(ctx, publicID, kind).Error(0)
}

func (m *mockAssets) DeliveryURL(publicID string, kind interfaces.AssetKind) string {
	return m.Called(publicID, kind).String(0)
}

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) Capture(ctx context.Context, intent interfaces.OrderIntent) (interfaces.PaymentResult, error) {
	args := m.Called(ctx, intent)
	return args.Get(0).(interfaces.PaymentResult), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, recipient, template string, data map[string]interface{}) error {
	return m.Called(ctx, recipient, template, data).Error(0)
}

// memRecords is an in-memory RecordStore with injectable create failures.
type memRecords struct {
	mu       sync.Mutex
	products map[uuid.UUID]model.Product
	articles map[uuid.UUID]model.Article
	bookings map[uuid.UUID]model.Booking
	orders   map[uuid.UUID]model.Order

	failProduct error
	failBooking error
	failOrder   error
}

func newMemRecords() *memRecords {
	return &memRecords{
		products: make(map[uuid.UUID]model.Product),
		articles: make(map[uuid.UUID]model.Article),
		bookings: make(map[uuid.UUID]model.Booking),
		orders:   make(map[uuid.UUID]model.Order),
	}
}

func (r *memRecords) CreateProduct(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failProduct != nil {
		return r.failProduct
	}
	if _, ok := r.products[p.ID]; !ok {
		r.products[p.ID] = *p
	}
	return nil
}

func (r *memRecords) UpdateProduct(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = *p
	return nil
}

func (r *memRecords) DeleteProduct(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, id)
	return nil
}

func (r *memRecords) GetProduct(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &p, nil
}

func (r *memRecords) CreateArticle(_ context.Context, a *model.Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.articles[a.ID]; !ok {
		r.articles[a.ID] = *a
	}
	return nil
}

func (r *memRecords) UpdateArticle(_ context.Context, a *model.Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles[a.ID] = *a
	return nil
}

func (r *memRecords) DeleteArticle(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.articles, id)
	return nil
}

func (r *memRecords) CreateBooking(_ context.Context, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBooking != nil {
		return r.failBooking
	}
	if _, ok := r.bookings[b.ID]; !ok {
		r.bookings[b.ID] = *b
	}
	return nil
}

func (r *memRecords) setBookingStatus(id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	b.Status = status
	r.bookings[id] = b
	return nil
}

func (r *memRecords) ConfirmBooking(_ context.Context, id uuid.UUID) error {
	return r.setBookingStatus(id, model.BookingConfirmed)
}

func (r *memRecords) CancelBooking(_ context.Context, id uuid.UUID) error {
	if err := r.setBookingStatus(id, model.BookingVoid); err != interfaces.ErrNotFound {
		return err
	}
	return nil
}

func (r *memRecords) DeleteBooking(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bookings, id)
	return nil
}

func (r *memRecords) ListBookings(_ context.Context, resource, date string) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Booking
	for _, b := range r.bookings {
		if b.Resource == resource && b.Date == date && b.Status != model.BookingVoid {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memRecords) CountBookingsByEmail(_ context.Context, email, date string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, b := range r.bookings {
		if b.Email == email && b.Date == date && b.Status != model.BookingVoid {
			n++
		}
	}
	return n, nil
}

func (r *memRecords) CreateOrder(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOrder != nil {
		return r.failOrder
	}
	if _, ok := r.orders[o.ID]; !ok {
		r.orders[o.ID] = *o
	}
	return nil
}

func (r *memRecords) VoidOrder(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil
	}
	o.Status = model.OrderVoid
	r.orders[id] = o
	return nil
}

func (r *memRecords) DeleteOrder(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
	return nil
}

func (r *memRecords) GetOrder(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &o, nil
}

func (r *memRecords) bookingList() []model.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Booking, 0, len(r.bookings))
	for _, b := range r.bookings {
		out = append(out, b)
	}
	return out
}

func (r *memRecords) orderList() []model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out
}

type fixture struct {
	assets   *mockAssets
	payments *mockPayments
	notifier *mockNotifier
	records  *memRecords
	slots    *slot.MemoryManager
	deps     Deps
	engine   *engine.Engine
	now      time.Time
}

func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()
	return newFixtureWithDeps(t, nil, opts...)
}

// newFixtureWithDeps lets configure adjust the collaborators before the
// workflows are registered.
func newFixtureWithDeps(t *testing.T, configure func(*Deps), opts ...engine.Option) *fixture {
	t.Helper()
	f := &fixture{
		assets:   new(mockAssets),
		payments: new(mockPayments),
		notifier: new(mockNotifier),
		records:  newMemRecords(),
		now:      time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC),
	}
	f.slots = slot.NewMemoryManager(slot.WithClock(func() time.Time { return f.now }))
	f.deps = Deps{
		Assets:     f.assets,
		Payments:   f.payments,
		Records:    f.records,
		Notifier:   f.notifier,
		Slots:      f.slots,
		Policy:     DefaultBookingPolicy(),
		AdminEmail: "studio@example.com",
	}
	if configure != nil {
		configure(&f.deps)
	}

	base := []engine.Option{
		engine.WithSleep(func(time.Duration) {}),
		engine.WithCompensationRegistry(compensation.NewRegistry(
			compensation.WithRetryPolicy(retry.FixedInterval{Attempts: 2}),
		)),
	}
	eng, err := engine.New(idempotency.NewMemoryStore(), engine.DefaultConfig(), append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, Register(eng, f.deps))
	t.Cleanup(eng.Close)
	f.engine = eng
	return f
}

func (f *fixture) submit(t *testing.T, name, key string, input interface{}, credential string) *workflow.Outcome {
	t.Helper()
	out, err := f.engine.Submit(context.Background(), engine.Request{
		Workflow:       name,
		IdempotencyKey: key,
		Input:          input,
		Credential:     credential,
	})
	require.NoError(t, err)
	return out
}
