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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/atelier/internal/atelier/adapter/notify"
	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/internal/atelier/model"
	"github.com/innovationmech/atelier/internal/atelier/security"
	"github.com/innovationmech/atelier/pkg/workflow"
	"github.com/innovationmech/atelier/pkg/workflow/engine"
	"github.com/innovationmech/atelier/pkg/workflow/slot"
)

var (
	imageRef    = interfaces.AssetReference{URL: "https://cdn.example.com/image/cover.png", PublicID: "products/cover", Kind: interfaces.AssetImage}
	documentRef = interfaces.AssetReference{URL: "https://cdn.example.com/raw/notes.pdf", PublicID: "products/notes", Kind: interfaces.AssetDocument}
)

func bundleInput() PublishAssetBundleInput {
	return PublishAssetBundleInput{
		Title:       "Field Notes",
		Description: "Sketches from the studio",
		Price:       "12.00",
		Currency:    "EUR",
		Image:       interfaces.Asset{Filename: "cover.png", ContentType: "image/png", Data: []byte("png-bytes")},
		Document:    interfaces.Asset{Filename: "notes.pdf", ContentType: "application/pdf", Data: []byte("pdf-bytes")},
	}
}

func isKind(kind interfaces.AssetKind) interface{} {
	return mock.MatchedBy(func(a interfaces.Asset) bool { return a.Kind == kind })
}

func TestPublishAssetBundle_Succeeds(t *testing.T) {
	f := newFixture(t)
	f.assets.On("Upload", mock.Anything, isKind(interfaces.AssetImage), mock.Anything).Return(imageRef, nil).Once()
	f.assets.On("Upload", mock.Anything, isKind(interfaces.AssetDocument), mock.Anything).Return(documentRef, nil).Once()

	out := f.submit(t, PublishAssetBundle, "bundle-1", bundleInput(), "")
	require.Equal(t, workflow.OutcomeSuccess, out.Kind)

	var result ProductRecordResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.Equal(t, imageRef.URL, result.ImageURL)
	assert.Equal(t, documentRef.URL, result.DocumentURL)

	product, err := f.records.GetProduct(context.Background(), result.ProductID)
	require.NoError(t, err)
	assert.Equal(t, "Field Notes", product.Title)
	assert.Equal(t, documentRef.PublicID, product.DocumentPublicID)

	// Replaying the key serves the stored outcome without touching the asset store.
	replay := f.submit(t, PublishAssetBundle, "bundle-1", bundleInput(), "")
	assert.True(t, replay.Replayed)
	assert.Equal(t, out.Result, replay.Result)
	f.assets.AssertNumberOfCalls(t, "Upload", 2)
	f.assets.AssertExpectations(t)
}

func TestPublishAssetBundle_PersistFailureDeletesBothAssets(t *testing.T) {
	f := newFixture(t)
	f.records.failProduct = errors.New("database is unavailable")
	f.assets.On("Upload", mock.Anything, isKind(interfaces.AssetImage), mock.Anything).Return(imageRef, nil)
	f.assets.On("Upload", mock.Anything, isKind(interfaces.AssetDocument), mock.Anything).Return(documentRef, nil)

	var deleted []string
	f.assets.On("Delete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { deleted = append(deleted, args.String(1)) }).
		Return(nil)

	out := f.submit(t, PublishAssetBundle, "bundle-2", bundleInput(), "")
	assert.Equal(t, workflow.OutcomeFailure, out.Kind)
	assert.Equal(t, workflow.StatusCompensated, out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, workflow.ErrCodeRecordPersistFailed, out.Error.Code)
	assert.Equal(t, "persist_product", out.Error.Step)

	assert.Equal(t, []string{documentRef.PublicID, imageRef.PublicID}, deleted)
	f.assets.AssertNumberOfCalls(t, "Delete", 2)
	assert.Empty(t, f.records.products)
}

func TestPublishAssetBundle_SecondUploadFailureCompensatesFirst(t *testing.T) {
	f := newFixture(t)
	f.assets.On("Upload", mock.Anything, isKind(interfaces.AssetImage), mock.Anything).Return(imageRef, nil)
	f.assets.On("Upload", mock.Anything, isKind(interfaces.AssetDocument), mock.Anything).
		Return(interfaces.AssetReference{}, workflow.Permanent(errors.New("file too large")))
	f.assets.On("Delete", mock.Anything, imageRef.PublicID, interfaces.AssetImage).Return(nil).Once()

	out := f.submit(t, PublishAssetBundle, "bundle-3", bundleInput(), "")
	assert.Equal(t, workflow.OutcomeFailure, out.Kind)
	assert.Equal(t, workflow.StatusCompensated, out.Status)
	assert.Equal(t, workflow.ErrCodeAssetUploadFailed, out.Error.Code)
	assert.Equal(t, "upload_document", out.Error.Step)

	inst, err := f.engine.Status(context.Background(), "bundle-3")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompensated, inst.Status)
	f.assets.AssertExpectations(t)
}

func TestPublishAssetBundle_RequiresCatalogCapability(t *testing.T) {
	checker, err := security.NewJWTChecker("test-secret", "atelier")
	require.NoError(t, err)
	f := newFixture(t, engine.WithCapabilityChecker(security.Chain{checker}))

	readOnly, err := checker.Issue("viewer", []string{security.CapabilityContentWrite}, time.Hour)
	require.NoError(t, err)
	out := f.submit(t, PublishAssetBundle, "bundle-4", bundleInput(), readOnly)
	assert.Equal(t, workflow.OutcomeFailure, out.Kind)
	assert.Equal(t, workflow.ErrCodeUnauthorized, out.Error.Code)
	f.assets.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)

	editor, err := checker.Issue("editor", []string{security.CapabilityCatalogWrite}, time.Hour)
	require.NoError(t, err)
	f.assets.On("Upload", mock.Anything, isKind(interfaces.AssetImage), mock.Anything).Return(imageRef, nil)
	f.assets.On("Upload", mock.Anything, isKind(interfaces.AssetDocument), mock.Anything).Return(documentRef, nil)
	out = f.submit(t, PublishAssetBundle, "bundle-5", bundleInput(), editor)
	assert.Equal(t, workflow.OutcomeSuccess, out.Kind)
}

func TestPublishAssetBundle_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		mutate func(*PublishAssetBundleInput)
	}{
		{"missing title", func(in *PublishAssetBundleInput) { in.Title = "" }},
		{"bad price", func(in *PublishAssetBundleInput) { in.Price = "twelve" }},
		{"lowercase currency", func(in *PublishAssetBundleInput) { in.Currency = "eur" }},
		{"missing document", func(in *PublishAssetBundleInput) { in.Document.Data = nil }},
		{"image is not an image", func(in *PublishAssetBundleInput) { in.Image.ContentType = "application/pdf" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bundleInput()
			tt.mutate(&in)
			out := f.submit(t, PublishAssetBundle, "invalid-"+tt.name, in, "")
			assert.Equal(t, workflow.OutcomeFailure, out.Kind)
			assert.Equal(t, workflow.ErrCodeInvalidInput, out.Error.Code)
		})
	}
	f.assets.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
}

func bookingInput(resource string, hour int, email string) ReserveSlotInput {
	return ReserveSlotInput{
		Resource: resource,
		Date:     "2024-06-01",
		Hour:     hour,
		Name:     "Ada Lovelace",
		Email:    email,
		Note:     "Portrait session",
	}
}

func TestReserveSlot_Succeeds(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Send", mock.Anything, "ada@example.com", notify.TemplateBookingClient, mock.Anything).Return(nil).Once()
	f.notifier.On("Send", mock.Anything, "studio@example.com", notify.TemplateBookingAdmin, mock.Anything).Return(nil).Once()

	out := f.submit(t, ReserveSlot, "booking-1", bookingInput("room-1", 14, "ada@example.com"), "")
	require.Equal(t, workflow.OutcomeSuccess, out.Kind, "outcome error: %v", out.Error)

	var result BookingResult
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.Equal(t, "room-1", result.Resource)
	assert.Equal(t, 14, result.Hour)
	assert.Equal(t, model.BookingConfirmed, result.Status)

	bookings := f.records.bookingList()
	require.Len(t, bookings, 1)
	assert.Equal(t, model.BookingConfirmed, bookings[0].Status)
	assert.Equal(t, result.BookingID, bookings[0].ID)

	hold, err := f.slots.Status(context.Background(), slot.Key{Resource: "room-1", Date: "2024-06-01", Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, slot.StateConfirmed, hold.State)
	f.notifier.AssertExpectations(t)
}

func TestReserveSlot_ConcurrentBookingsOfOneSlot(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	outcomes := make([]*workflow.Outcome, 2)
	for i, email := range []string{"ada@example.com", "grace@example.com"} {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			out, err := f.engine.Submit(context.Background(), engine.Request{
				Workflow:       ReserveSlot,
				IdempotencyKey: "concurrent-" + email,
				Input:          bookingInput("room-1", 14, email),
			})
			assert.NoError(t, err)
			outcomes[i] = out
		}(i, email)
	}
	wg.Wait()

	kinds := map[workflow.OutcomeKind]int{}
	for _, out := range outcomes {
		require.NotNil(t, out)
		kinds[out.Kind]++
		if out.Kind == workflow.OutcomeConflict {
			assert.Equal(t, workflow.ErrCodeSlotUnavailable, out.Error.Code)
		}
	}
	assert.Equal(t, map[workflow.OutcomeKind]int{workflow.OutcomeSuccess: 1, workflow.OutcomeConflict: 1}, kinds)

	confirmed := 0
	for _, b := range f.records.bookingList() {
		if b.Status == model.BookingConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestReserveSlot_NotificationFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp: connection refused"))

	out := f.submit(t, ReserveSlot, "booking-2", bookingInput("", 10, "ada@example.com"), "")
	assert.Equal(t, workflow.OutcomeSuccessWithWarning, out.Kind)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "send_confirmation")

	bookings := f.records.bookingList()
	require.Len(t, bookings, 1)
	assert.Equal(t, "studio", bookings[0].Resource)
	assert.Equal(t, model.BookingConfirmed, bookings[0].Status)
}

func TestReserveSlot_PolicyRejections(t *testing.T) {
	tests := []struct {
		name      string
		onePerDay bool
		input     ReserveSlotInput
		wantKind  workflow.OutcomeKind
	}{
		{"before opening", false, bookingInput("room-1", 8, "ada@example.com"), workflow.OutcomeFailure},
		{"at closing", false, bookingInput("room-1", 17, "ada@example.com"), workflow.OutcomeFailure},
		{"second booking same day", true, bookingInput("room-1", 15, "ada@example.com"), workflow.OutcomeFailure},
		{"already booked hour", false, bookingInput("room-1", 11, "grace@example.com"), workflow.OutcomeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixtureWithDeps(t, func(d *Deps) { d.Policy.OnePerDay = tt.onePerDay })
			f.records.bookings[uuid.New()] = model.Booking{
				Resource: "room-1", Date: "2024-06-01", Hour: 11,
				Email: "ada@example.com", Status: model.BookingConfirmed,
			}

			out := f.submit(t, ReserveSlot, "policy-"+tt.name, tt.input, "")
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, workflow.ErrCodeSlotUnavailable, out.Error.Code)
			assert.Equal(t, "check_availability", out.Error.Step)
			f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestReserveSlot_PersistFailureReleasesSlot(t *testing.T) {
	f := newFixture(t)
	f.records.failBooking = workflow.Permanent(errors.New("constraint violation"))

	out := f.submit(t, ReserveSlot, "booking-3", bookingInput("room-1", 14, "ada@example.com"), "")
	assert.Equal(t, workflow.OutcomeFailure, out.Kind)
	assert.Equal(t, workflow.StatusCompensated, out.Status)
	assert.Equal(t, workflow.ErrCodeRecordPersistFailed, out.Error.Code)

	hold, err := f.slots.Status(context.Background(), slot.Key{Resource: "room-1", Date: "2024-06-01", Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, slot.StateFree, hold.State)
}

func TestReserveSlot_AbandonedPendingBookingLapses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	key := slot.Key{Resource: "room-1", Date: "2024-06-01", Hour: 14}
	result, err := f.slots.TryReserve(ctx, key, "crashed-instance")
	require.NoError(t, err)
	require.Equal(t, slot.Reserved, result)
	f.records.bookings[uuid.New()] = model.Booking{
		Resource: "room-1", Date: "2024-06-01", Hour: 14,
		Email: "ada@example.com", Status: model.BookingPending, InstanceID: "crashed-instance",
	}

	out := f.submit(t, ReserveSlot, "while-held", bookingInput("room-1", 14, "grace@example.com"), "")
	assert.Equal(t, workflow.OutcomeConflict, out.Kind)
	avail, err := f.deps.Availability(ctx, "room-1", "2024-06-01")
	require.NoError(t, err)
	assert.NotContains(t, avail.FreeHours(), 14)

	f.now = f.now.Add(slot.DefaultHoldWindow + time.Minute)

	avail, err = f.deps.Availability(ctx, "room-1", "2024-06-01")
	require.NoError(t, err)
	assert.Contains(t, avail.FreeHours(), 14)

	out = f.submit(t, ReserveSlot, "after-lapse", bookingInput("room-1", 14, "grace@example.com"), "")
	require.Equal(t, workflow.OutcomeSuccess, out.Kind, "outcome error: %v", out.Error)

	hold, err := f.slots.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, slot.StateConfirmed, hold.State)
	assert.NotEqual(t, "crashed-instance", hold.Owner)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.records.bookings[uuid.New()] = model.Booking{Resource: "studio", Date: "2024-06-01", Hour: 9, Status: model.BookingConfirmed}
	f.records.bookings[uuid.New()] = model.Booking{Resource: "studio", Date: "2024-06-01", Hour: 10, Status: model.BookingVoid}

	result, err := f.slots.TryReserve(ctx, slot.Key{Resource: "studio", Date: "2024-06-01", Hour: 12}, "someone")
	require.NoError(t, err)
	require.Equal(t, slot.Reserved, result)

	avail, err := f.deps.Availability(ctx, "", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, "studio", avail.Resource)
	assert.Len(t, avail.Hours, 8)
	assert.Equal(t, []int{10, 11, 13, 14, 15, 16}, avail.FreeHours())

	// An unconfirmed hold lapses after the hold window.
	f.now = f.now.Add(slot.DefaultHoldWindow + time.Second)
	avail, err = f.deps.Availability(ctx, "studio", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16}, avail.FreeHours())

	_, err = f.deps.Availability(ctx, "studio", "June 1st")
	assert.ErrorIs(t, err, slot.ErrInvalidKey)
}

func seedProduct(f *fixture) uuid.UUID {
	id := uuid.New()
	f.records.products[id] = model.Product{
		ID: id, Title: "Field Notes", Price: "12.00", Currency: "EUR",
		DocumentPublicID: documentRef.PublicID,
	}
	return id
}

var payment = interfaces.PaymentResult{
	CaptureID: "CAP-1", PayerEmail: "buyer@example.com", PayerName: "Grace",
	Amount: "12.00", Currency: "EUR",
}

func TestFulfillPurchase_Succeeds(t *testing.T) {
	f := newFixture(t)
	productID := seedProduct(f)
	f.payments.On("Capture", mock.Anything, mock.MatchedBy(func(in interfaces.OrderIntent) bool {
		return in.ProviderOrderID == "5O190127TN364715T" && in.RequestID == "order-5O190127TN364715T" && in.Amount == "12.00"
	})).Return(payment, nil).Once()
	f.assets.On("DeliveryURL", documentRef.PublicID, interfaces.AssetDocument).Return(documentRef.URL)
	f.notifier.On("Send", mock.Anything, "buyer@example.com", notify.TemplateDelivery, mock.MatchedBy(func(data map[string]interface{}) bool {
		return data["DownloadURL"] == documentRef.URL && data["Title"] == "Field Notes"
	})).Return(nil).Once()

	input := FulfillPurchaseInput{ProviderOrderID: "5O190127TN364715T", ProductID: productID.String()}
	out := f.submit(t, FulfillPurchase, "order-5O190127TN364715T", input, "")
	require.Equal(t, workflow.OutcomeSuccess, out.Kind, "outcome error: %v", out.Error)

	orders := f.records.orderList()
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderPaid, orders[0].Status)
	assert.Equal(t, "CAP-1", orders[0].CaptureID)

	replay := f.submit(t, FulfillPurchase, "order-5O190127TN364715T", input, "")
	assert.True(t, replay.Replayed)
	f.payments.AssertNumberOfCalls(t, "Capture", 1)
	f.notifier.AssertNumberOfCalls(t, "Send", 1)
}

func TestFulfillPurchase_CaptureFailure(t *testing.T) {
	f := newFixture(t)
	productID := seedProduct(f)
	f.payments.On("Capture", mock.Anything, mock.Anything).
		Return(interfaces.PaymentResult{}, errors.New("INSTRUMENT_DECLINED"))

	out := f.submit(t, FulfillPurchase, "order-DECLINED1", FulfillPurchaseInput{ProviderOrderID: "DECLINED1", ProductID: productID.String()}, "")
	assert.Equal(t, workflow.OutcomeFailure, out.Kind)
	assert.Equal(t, workflow.StatusFailed, out.Status)
	assert.Equal(t, workflow.ErrCodePaymentCaptureFailed, out.Error.Code)
	assert.Equal(t, "capture_payment", out.Error.Step)

	f.payments.AssertNumberOfCalls(t, "Capture", 1)
	assert.Empty(t, f.records.orderList())
	f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	inst, err := f.engine.Status(context.Background(), "order-DECLINED1")
	require.NoError(t, err)
	for _, rec := range inst.Steps {
		assert.Equal(t, workflow.CompensationNone, rec.Compensation, rec.Name)
	}
}

func TestFulfillPurchase_NotificationFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	productID := seedProduct(f)
	f.payments.On("Capture", mock.Anything, mock.Anything).Return(payment, nil)
	f.assets.On("DeliveryURL", mock.Anything, mock.Anything).Return(documentRef.URL)
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("mailbox unavailable"))

	out := f.submit(t, FulfillPurchase, "order-MAILFAIL1", FulfillPurchaseInput{ProviderOrderID: "MAILFAIL1", ProductID: productID.String()}, "")
	assert.Equal(t, workflow.OutcomeSuccessWithWarning, out.Kind)
	assert.NotEmpty(t, out.Warnings)

	orders := f.records.orderList()
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderPaid, orders[0].Status, "order must not be voided")
}

func TestFulfillPurchase_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	out := f.submit(t, FulfillPurchase, "order-UNKNOWN1", FulfillPurchaseInput{ProviderOrderID: "UNKNOWN1", ProductID: uuid.NewString()}, "")
	assert.Equal(t, workflow.OutcomeFailure, out.Kind)
	assert.Equal(t, workflow.ErrCodeProductNotFound, out.Error.Code)
	f.payments.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)
}

func TestFulfillPurchase_KeyBoundToProviderOrder(t *testing.T) {
	f := newFixture(t)
	productID := seedProduct(f)
	f.payments.On("Capture", mock.Anything, mock.Anything).Return(payment, nil).Once()
	f.assets.On("DeliveryURL", mock.Anything, mock.Anything).Return(documentRef.URL)
	f.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	input := FulfillPurchaseInput{ProviderOrderID: "8MC585209K746392H", ProductID: productID.String()}
	out := f.submit(t, FulfillPurchase, "", input, "")
	require.Equal(t, workflow.OutcomeSuccess, out.Kind, "outcome error: %v", out.Error)
	assert.Equal(t, OrderKey("8MC585209K746392H"), out.IdempotencyKey)

	again := f.submit(t, FulfillPurchase, "approval-retry-2", input, "")
	assert.Equal(t, workflow.OutcomeFailure, again.Kind)
	assert.Equal(t, workflow.ErrCodeInvalidInput, again.Error.Code)

	f.payments.AssertNumberOfCalls(t, "Capture", 1)
	assert.Len(t, f.records.orderList(), 1)
}

func TestFulfillPurchase_DuplicateOrderFails(t *testing.T) {
	f := newFixture(t)
	productID := seedProduct(f)
	f.payments.On("Capture", mock.Anything, mock.Anything).Return(payment, nil)
	f.records.failOrder = fmt.Errorf("%w: orders", interfaces.ErrDuplicate)

	out := f.submit(t, FulfillPurchase, "", FulfillPurchaseInput{ProviderOrderID: "DUPLICATE1", ProductID: productID.String()}, "")
	assert.Equal(t, workflow.OutcomeFailure, out.Kind)
	assert.Equal(t, workflow.ErrCodeRecordPersistFailed, out.Error.Code)
	assert.Equal(t, "persist_order", out.Error.Step)
	f.payments.AssertNumberOfCalls(t, "Capture", 1)
	f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishArticle(t *testing.T) {
	t.Run("with cover", func(t *testing.T) {
		f := newFixture(t)
		f.assets.On("Upload", mock.Anything, isKind(interfaces.AssetImage), mock.Anything).Return(imageRef, nil).Once()

		out := f.submit(t, PublishArticle, "article-1", PublishArticleInput{
			Title: "Studio diary",
			Body:  "Notes from June.",
			Image: &interfaces.Asset{Filename: "cover.png", ContentType: "image/png", Data: []byte("png")},
		}, "")
		require.Equal(t, workflow.OutcomeSuccess, out.Kind)
		var result ArticleResult
		require.NoError(t, json.Unmarshal(out.Result, &result))
		assert.Equal(t, imageRef.URL, result.ImageURL)
		assert.Equal(t, imageRef.PublicID, f.records.articles[result.ArticleID].ImagePublicID)
	})

	t.Run("without cover", func(t *testing.T) {
		f := newFixture(t)
		out := f.submit(t, PublishArticle, "article-2", PublishArticleInput{Title: "Short note", Body: "Closed on Monday."}, "")
		require.Equal(t, workflow.OutcomeSuccess, out.Kind)
		var result ArticleResult
		require.NoError(t, json.Unmarshal(out.Result, &result))
		assert.Empty(t, result.ImageURL)
		f.assets.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDeps_Validate(t *testing.T) {
	err := Deps{Policy: DefaultBookingPolicy()}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset store is required")
	assert.Contains(t, err.Error(), "slot manager is required")

	f := newFixture(t)
	assert.NoError(t, f.deps.Validate())
	bad := f.deps
	bad.Policy.OpenHour, bad.Policy.CloseHour = 18, 9
	assert.Error(t, bad.Validate())
}
