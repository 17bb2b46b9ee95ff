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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/innovationmech/atelier/internal/atelier/adapter/notify"
	"github.com/innovationmech/atelier/internal/atelier/model"
	"github.com/innovationmech/atelier/pkg/logger"
	"github.com/innovationmech/atelier/pkg/workflow"
	"github.com/innovationmech/atelier/pkg/workflow/slot"
)

var (
	// ErrOutsideBusinessHours is returned for hours the studio is closed.
	ErrOutsideBusinessHours = errors.New("hour is outside business hours")
	// ErrDailyLimit is returned when the one-booking-per-day policy is violated.
	ErrDailyLimit = errors.New("a booking for this date already exists")
)

// ReserveSlotInput books one hour of a resource.
type ReserveSlotInput struct {
	Resource string `json:"resource,omitempty" validate:"omitempty,max=64"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Hour     int    `json:"hour" validate:"gte=0,lte=23"`
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,max=64"`
	Note     string `json:"note,omitempty" validate:"max=2000"`
}

// BookingResult is the aggregate result of a confirmed reservation.
type BookingResult struct {
	BookingID uuid.UUID `json:"booking_id"`
	Resource  string    `json:"resource"`
	Date      string    `json:"date"`
	Hour      int       `json:"hour"`
	Status    string    `json:"status"`
}

type bookingRecord struct {
	BookingID uuid.UUID `json:"booking_id"`
	Key       slot.Key  `json:"key"`
}

// ReserveSlotDefinition checks availability, holds the slot, records the
// booking, confirms both and finally mails the client and the admin.
func (d Deps) ReserveSlotDefinition() *workflow.Definition {
	return &workflow.Definition{
		Name:     ReserveSlot,
		NewInput: func() interface{} { return &ReserveSlotInput{} },
		Steps: []workflow.Step{
			{
				Name:        "check_availability",
				Action:      d.checkAvailability,
				FailureCode: workflow.ErrCodeSlotUnavailable,
			},
			{
				Name:        "reserve_slot",
				Action:      d.reserveSlot,
				Compensate:  d.releaseSlot,
				FailureCode: workflow.ErrCodeSlotUnavailable,
			},
			{
				Name:        "persist_booking",
				Action:      d.persistBooking,
				Compensate:  d.voidBooking,
				FailureCode: workflow.ErrCodeRecordPersistFailed,
			},
			{
				Name:        "confirm_slot",
				Action:      d.confirmSlot,
				FailureCode: workflow.ErrCodeSlotConfirmFailed,
			},
			{
				Name:        "send_confirmation",
				Action:      d.sendBookingMails,
				FailureCode: workflow.ErrCodeNotificationFailed,
				Degradable:  true,
			},
		},
		Summarize: func(sc *workflow.StepContext) (interface{}, error) {
			rec, err := workflow.ResultOf[bookingRecord](sc, "persist_booking")
			if err != nil {
				return nil, err
			}
			return BookingResult{
				BookingID: rec.BookingID,
				Resource:  rec.Key.Resource,
				Date:      rec.Key.Date,
				Hour:      rec.Key.Hour,
				Status:    model.BookingConfirmed,
			}, nil
		},
	}
}

func (d Deps) slotKey(in ReserveSlotInput) slot.Key {
	resource := in.Resource
	if resource == "" {
		resource = d.Policy.Resource
	}
	return slot.Key{Resource: resource, Date: in.Date, Hour: in.Hour}
}

func (d Deps) checkAvailability(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	in, err := workflow.InputOf[ReserveSlotInput](sc)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	key := d.slotKey(in)
	if err := key.Validate(); err != nil {
		return nil, workflow.Permanent(err)
	}
	if !d.Policy.Bookable(key.Hour) {
		return nil, workflow.Permanent(fmt.Errorf("%w: %d", ErrOutsideBusinessHours, key.Hour))
	}

	bookings, err := d.Records.ListBookings(ctx, key.Resource, key.Date)
	if err != nil {
		return nil, err
	}
	own := sc.RecordID("persist_booking")
	var hold *slot.Hold
	for _, b := range bookings {
		if b.Hour != key.Hour || b.ID == own {
			continue
		}
		if hold == nil {
			h, err := d.Slots.Status(ctx, key)
			if err != nil {
				return nil, err
			}
			hold = &h
		}
		if occupies(b, *hold) {
			return nil, fmt.Errorf("%w: slot %s is booked", workflow.ErrConflict, key)
		}
	}

	if d.Policy.OnePerDay {
		count, err := d.Records.CountBookingsByEmail(ctx, in.Email, key.Date)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, workflow.Permanent(ErrDailyLimit)
		}
	}
	return key, nil
}

func (d Deps) reserveSlot(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	key, err := workflow.ResultOf[slot.Key](sc, "check_availability")
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	result, err := d.Slots.TryReserve(ctx, key, sc.InstanceID)
	if err != nil {
		return nil, err
	}
	if result == slot.Conflict {
		return nil, fmt.Errorf("%w: slot %s is held", workflow.ErrConflict, key)
	}
	return key, nil
}

func (d Deps) releaseSlot(ctx context.Context, sc *workflow.StepContext, result json.RawMessage) error {
	key, err := workflow.Decode[slot.Key](result)
	if err != nil {
		return err
	}
	return d.Slots.Release(ctx, key, sc.InstanceID)
}

func (d Deps) persistBooking(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	in, err := workflow.InputOf[ReserveSlotInput](sc)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	key, err := workflow.ResultOf[slot.Key](sc, "reserve_slot")
	if err != nil {
		return nil, workflow.Permanent(err)
	}

	booking := &model.Booking{
		ID:         sc.RecordID("persist_booking"),
		Resource:   key.Resource,
		Date:       key.Date,
		Hour:       key.Hour,
		Name:       in.Name,
		Email:      in.Email,
		Phone:      in.Phone,
		Note:       in.Note,
		Status:     model.BookingPending,
		InstanceID: sc.InstanceID,
	}
	if err := d.Records.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}
	return bookingRecord{BookingID: booking.ID, Key: key}, nil
}

// voidBooking releases the slot and marks the booking void.
func (d Deps) voidBooking(ctx context.Context, sc *workflow.StepContext, result json.RawMessage) error {
	rec, err := workflow.Decode[bookingRecord](result)
	if err != nil {
		return err
	}
	if err := d.Slots.Release(ctx, rec.Key, sc.InstanceID); err != nil && !errors.Is(err, slot.ErrSlotConfirmed) {
		return err
	}
	return d.Records.CancelBooking(ctx, rec.BookingID)
}

func (d Deps) confirmSlot(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	rec, err := workflow.ResultOf[bookingRecord](sc, "persist_booking")
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	if err := d.Records.ConfirmBooking(ctx, rec.BookingID); err != nil {
		return nil, err
	}
	if err := d.Slots.Confirm(ctx, rec.Key, sc.InstanceID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d Deps) sendBookingMails(ctx context.Context, sc *workflow.StepContext) (interface{}, error) {
	in, err := workflow.InputOf[ReserveSlotInput](sc)
	if err != nil {
		return nil, workflow.Permanent(err)
	}
	rec, err := workflow.ResultOf[bookingRecord](sc, "persist_booking")
	if err != nil {
		return nil, workflow.Permanent(err)
	}

	data := map[string]interface{}{
		"Name":     in.Name,
		"Email":    in.Email,
		"Phone":    in.Phone,
		"Note":     in.Note,
		"Resource": rec.Key.Resource,
		"Date":     rec.Key.Date,
		"Hour":     rec.Key.Hour,
	}
	if err := d.Notifier.Send(ctx, in.Email, notify.TemplateBookingClient, data); err != nil {
		return nil, err
	}
	if d.AdminEmail != "" {
		if err := d.Notifier.Send(ctx, d.AdminEmail, notify.TemplateBookingAdmin, data); err != nil {
			logger.GetLogger().Warn("admin booking mail failed",
				zap.String("instance_id", sc.InstanceID), zap.Error(err))
		}
	}
	return nil, nil
}
