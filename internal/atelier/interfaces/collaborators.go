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

// Package interfaces declares the external collaborators the workflows drive.
package interfaces

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/innovationmech/atelier/internal/atelier/model"
)

var (
	// ErrNotFound is returned by RecordStore lookups that match nothing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a create collides with another record on a unique field.
	ErrDuplicate = errors.New("record already exists")
)

// AssetKind distinguishes images from downloadable documents.
type AssetKind string

const (
	AssetImage    AssetKind = "image"
	AssetDocument AssetKind = "document"
)

// Asset is a file to upload.
type Asset struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	Kind        AssetKind `json:"kind"`
}

// AssetReference locates an uploaded asset.
type AssetReference struct {
	URL      string    `json:"url"`
	PublicID string    `json:"public_id"`
	Kind     AssetKind `json:"kind"`
}

// AssetStore uploads and deletes assets.
type AssetStore interface {
	// Upload stores the asset. Uploading with the same public id twice
	// overwrites the earlier upload.
	Upload(ctx context.Context, asset Asset, publicID string) (AssetReference, error)
	// Delete removes an asset. Deleting a missing asset succeeds.
	Delete(ctx context.Context, publicID string, kind AssetKind) error
	// DeliveryURL returns the public URL of an asset.
	DeliveryURL(publicID string, kind AssetKind) string
}

// OrderIntent describes an approved payment to capture.
type OrderIntent struct {
	ProviderOrderID string
	ProductID       string
	Amount          string
	Currency        string
	// RequestID makes the capture idempotent at the provider.
	RequestID string
}

// PaymentResult is a completed capture.
type PaymentResult struct {
	CaptureID  string `json:"capture_id"`
	PayerEmail string `json:"payer_email"`
	PayerName  string `json:"payer_name"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

// PaymentProcessor captures approved payments.
type PaymentProcessor interface {
	Capture(ctx context.Context, intent OrderIntent) (PaymentResult, error)
}

// RecordStore persists products, articles, bookings and orders.
// Create methods ignore a record whose id already exists.
type RecordStore interface {
	CreateProduct(ctx context.Context, product *model.Product) error
	UpdateProduct(ctx context.Context, product *model.Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)

	CreateArticle(ctx context.Context, article *model.Article) error
	UpdateArticle(ctx context.Context, article *model.Article) error
	DeleteArticle(ctx context.Context, id uuid.UUID) error

	CreateBooking(ctx context.Context, booking *model.Booking) error
	ConfirmBooking(ctx context.Context, id uuid.UUID) error
	CancelBooking(ctx context.Context, id uuid.UUID) error
	DeleteBooking(ctx context.Context, id uuid.UUID) error
	// ListBookings returns the non-void bookings of resource on date.
	ListBookings(ctx context.Context, resource, date string) ([]model.Booking, error)
	// CountBookingsByEmail returns the non-void bookings of email on date.
	CountBookingsByEmail(ctx context.Context, email, date string) (int64, error)

	CreateOrder(ctx context.Context, order *model.Order) error
	VoidOrder(ctx context.Context, id uuid.UUID) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
}

// Notifier delivers templated messages.
type Notifier interface {
	Send(ctx context.Context, recipient, template string, data map[string]interface{}) error
}
