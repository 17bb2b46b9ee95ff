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

// Package workflows defines the atelier workflows: publishing a product
// bundle, reserving a slot, fulfilling a purchase and publishing an article.
package workflows

import (
	"errors"
	"fmt"
	"time"

	"github.com/innovationmech/atelier/internal/atelier/interfaces"
	"github.com/innovationmech/atelier/pkg/workflow"
	"github.com/innovationmech/atelier/pkg/workflow/engine"
	"github.com/innovationmech/atelier/pkg/workflow/slot"
)

// Workflow names.
const (
	PublishAssetBundle = "publish_asset_bundle"
	ReserveSlot        = "reserve_slot"
	FulfillPurchase    = "fulfill_purchase"
	PublishArticle     = "publish_article"
)

const uploadTimeout = 2 * time.Minute

// BookingPolicy restricts which slots can be booked.
type BookingPolicy struct {
	// Resource is used when a reservation names none.
	Resource string
	// OpenHour and CloseHour bound the bookable hours: OpenHour <= hour < CloseHour.
	OpenHour  int
	CloseHour int
	// OnePerDay limits every email address to one booking per date.
	OnePerDay bool
}

// DefaultBookingPolicy returns the studio business hours 9 to 17.
func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{Resource: "studio", OpenHour: 9, CloseHour: 17}
}

// Bookable reports whether hour lies within business hours.
func (p BookingPolicy) Bookable(hour int) bool {
	return hour >= p.OpenHour && hour < p.CloseHour
}

// Deps are the collaborators the workflows drive.
type Deps struct {
	Assets   interfaces.AssetStore
	Payments interfaces.PaymentProcessor
	Records  interfaces.RecordStore
	Notifier interfaces.Notifier
	Slots    slot.Manager
	Policy   BookingPolicy
	// AdminEmail receives a copy of every booking. Empty disables it.
	AdminEmail string
}

// Validate checks every collaborator is set.
func (d Deps) Validate() error {
	var errs []error
	if d.Assets == nil {
		errs = append(errs, errors.New("asset store is required"))
	}
	if d.Payments == nil {
		errs = append(errs, errors.New("payment processor is required"))
	}
	if d.Records == nil {
		errs = append(errs, errors.New("record store is required"))
	}
	if d.Notifier == nil {
		errs = append(errs, errors.New("notifier is required"))
	}
	if d.Slots == nil {
		errs = append(errs, errors.New("slot manager is required"))
	}
	if d.Policy.OpenHour >= d.Policy.CloseHour {
		errs = append(errs, fmt.Errorf("invalid business hours %d..%d", d.Policy.OpenHour, d.Policy.CloseHour))
	}
	return errors.Join(errs...)
}

// Definitions returns every workflow definition bound to d.
func (d Deps) Definitions() []*workflow.Definition {
	return []*workflow.Definition{
		d.PublishAssetBundleDefinition(),
		d.ReserveSlotDefinition(),
		d.FulfillPurchaseDefinition(),
		d.PublishArticleDefinition(),
	}
}

// Register validates d and registers every workflow on eng.
func Register(eng *engine.Engine, d Deps) error {
	if err := d.Validate(); err != nil {
		return err
	}
	for _, def := range d.Definitions() {
		if err := eng.Register(def); err != nil {
			return err
		}
	}
	return nil
}
