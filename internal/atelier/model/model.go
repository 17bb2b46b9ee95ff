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

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Booking states.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingVoid      = "void"
)

// Order states.
const (
	OrderPaid = "paid"
	OrderVoid = "void"
)

// Product is a published digital product: a cover image and a downloadable document.
type Product struct {
	ID               uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Title            string    `gorm:"size:255;not null" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	Price            string    `gorm:"size:32;not null" json:"price"`
	Currency         string    `gorm:"size:3;not null" json:"currency"`
	ImageURL         string    `gorm:"size:512" json:"image_url"`
	ImagePublicID    string    `gorm:"size:255" json:"image_public_id"`
	DocumentURL      string    `gorm:"size:512" json:"-"`
	DocumentPublicID string    `gorm:"size:255" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when none is set.
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Article is an editorial post with an optional cover image.
type Article struct {
	ID            uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	Body          string    `gorm:"type:text" json:"body"`
	ImageURL      string    `gorm:"size:512" json:"image_url,omitempty"`
	ImagePublicID string    `gorm:"size:255" json:"image_public_id,omitempty"`
	Published     bool      `json:"published"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when none is set.
func (a *Article) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Booking is a reservation of one hour of a resource.
type Booking struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Resource  string    `gorm:"size:64;not null;index:idx_booking_slot" json:"resource"`
	Date      string    `gorm:"size:10;not null;index:idx_booking_slot" json:"date"`
	Hour      int       `gorm:"not null;index:idx_booking_slot" json:"hour"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	Phone     string    `gorm:"size:64" json:"phone,omitempty"`
	Note      string    `gorm:"type:text" json:"note,omitempty"`
	Status    string    `gorm:"size:16;not null;default:'pending'" json:"status"`

	// InstanceID is the workflow instance that holds the slot while the booking is pending.
	InstanceID string    `gorm:"size:64" json:"instance_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when none is set.
func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Order is a captured purchase of a product.
type Order struct {
	ID              uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	ProductID       uuid.UUID `gorm:"type:char(36);not null;index" json:"product_id"`
	ProviderOrderID string    `gorm:"size:64;not null;uniqueIndex" json:"provider_order_id"`
	CaptureID       string    `gorm:"size:64" json:"capture_id"`
	PayerEmail      string    `gorm:"size:255" json:"payer_email"`
	PayerName       string    `gorm:"size:255" json:"payer_name"`
	Amount          string    `gorm:"size:32;not null" json:"amount"`
	Currency        string    `gorm:"size:3;not null" json:"currency"`
	Status          string    `gorm:"size:16;not null;default:'paid'" json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when none is set.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// All returns every model for migrations.
func All() []interface{} {
	return []interface{}{&Product{}, &Article{}, &Booking{}, &Order{}}
}
