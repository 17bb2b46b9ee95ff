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

	"github.com/google/uuid"

	"github.com/innovationmech/atelier/internal/atelier/adapter/notify"
	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/internal/atelier/model"
	"github.com/innovationmech/atelier/pkg/workflow"
	"github.com/innovationmech/atelier/pkg/workflow/retry"
)

// FulfillPurchaseInput completes an order the buyer approved at the payment provider.
type FulfillPurchaseInput struct {
	ProviderOrderID string `json:"provider_order_id" validate:"required,max=64,alphanum"`
	ProductID       string `json:"product_id" validate:"required,uuid"`
}

// OrderResult is the aggregate result of a fulfilled purchase.
type OrderResult struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	CaptureID string    `json:"capture_id"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
}

type productSnapshot struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Price            string    `json:"price"`
	Currency         string    `json:"currency"`
	DocumentPublicID string    `json:"document_public_id"`
}

// OrderKey is the idempotency key of a provider order. A repeated approval
// callback for the same order replays the stored outcome.
func OrderKey(providerOrderID string) string {
	return "order-" + providerOrderID
}

// FulfillPurchaseDefinition loads the product, captures the payment exactly
// once, records the order and mails the download link.
func (d Deps) FulfillPurchaseDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name:     FulfillPurchase,
		NewInput: func() interface{} { return &FulfillPurchaseInput{} },
		IdempotencyKey: func(input interface{}) string {
			return OrderKey(input.(*FulfillPurchaseInput).ProviderOrderID)
		},
		Steps: []workflow.Step{
			{
				Name:        "load_product",
				Action:      d.loadProduct,
				FailureCode: workflow.ErrCodeProductNotFound,
			},
			{
				Name:        "capture_payment",
				Action:      d.capturePayment,
				Retry:       retry.NoRetry(),
				FailureCode: workflow.ErrCodePaymentCaptureFailed,
			},
			{
				Name:        "persist_order",
				Action:      d.persistOrder,
				Compensate:  d.voidOrder,
				FailureCode: workflow.ErrCodeRecordPersistFailed,
			},
			{
				Name:        "send_delivery",
				Action:      d.sendDelivery,
				FailureCode: workflow.ErrCodeNotificationFailed,
				Degradable:  true,
			},
		},
		Summarize: func(sc *workflow.StepContext) (interface{}, error) {
			return workflow.ResultOf[OrderResult](sc, "persist_order")
		},
	}
}

func (d Deps) loadProduct(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	in, err := workflow.InputOf[FulfillPurchaseInput](sc)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	id, err := uuid.Parse(in.ProductID)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	product, err := d.Records.GetProduct(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, workflow.Permanent(err)
	}
	if err != nil {
		return nil, err
	}
	return productSnapshot{
		ID:               product.ID,
		Title:            product.Title,
		Price:            product.Price,
		Currency:         product.Currency,
		DocumentPublicID: product.DocumentPublicID,
	}, nil
}

// capturePayment uses the workflow idempotency key as the provider request
// id, so the provider deduplicates a capture repeated after a crash.
func (d Deps) capturePayment(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	in, err := workflow.InputOf[FulfillPurchaseInput](sc)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	product, err := workflow.ResultOf[productSnapshot](sc, "load_product")
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	return d.Payments.Capture(ctx, interfaces.OrderIntent{
		ProviderOrderID: in.ProviderOrderID,
		ProductID:       product.ID.String(),
		Amount:          product.Price,
		Currency:        product.Currency,
		RequestID:       sc.IdempotencyKey,
	})
}

func (d Deps) persistOrder(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	in, err := workflow.InputOf[FulfillPurchaseInput](sc)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	product, err := workflow.ResultOf[productSnapshot](sc, "load_product")
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	payment, err := workflow.ResultOf[interfaces.PaymentResult](sc, "capture_payment")
	if err != nil {
		return nil, workflow.Permanent(err)
	}

	order := &model.Order{
		ID:              sc.RecordID("persist_order"),
		ProductID:       product.ID,
		ProviderOrderID: in.ProviderOrderID,
		CaptureID:       payment.CaptureID,
		PayerEmail:      payment.PayerEmail,
		PayerName:       payment.PayerName,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		Status:          model.OrderPaid,
	}
	if err := d.Records.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, workflow.Permanent(err)
		}
		return nil, err
	}
	return OrderResult{
		OrderID:   order.ID,
		ProductID: product.ID,
		CaptureID: payment.CaptureID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
	}, nil
}

func (d Deps) voidOrder(ctx context.Context, _ *workflow.StepContext, result json.RawMessage) error {
	order, err := workflow.Decode[OrderResult](result)
	if err != nil {
		return err
	}
	return d.Records.VoidOrder(ctx, order.OrderID)
}

func (d Deps) sendDelivery(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	product, err := workflow.ResultOf[productSnapshot](sc, "load_product")
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	payment, err := workflow.ResultOf[interfaces.PaymentResult](sc, "capture_payment")
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	order, err := workflow.ResultOf[OrderResult](sc, "persist_order")
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	if payment.PayerEmail == "" {
		return nil, workflow.Permanent(errors.New("payer email is unknown"))
	}

	return nil, d.Notifier.Send(ctx, payment.PayerEmail, notify.TemplateDelivery, map[string]interface{}{
		"Name":        payment.PayerName,
		"Title":       product.Title,
		"Amount":      payment.Amount,
		"Currency":    payment.Currency,
		"DownloadURL": d.Assets.DeliveryURL(product.DocumentPublicID, interfaces.AssetDocument),
		"OrderID":     order.OrderID.String(),
	})
}
