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

	"github.com/innovationmech/atelier/internal/atelier/model"
	"github.com/innovationmech/atelier/pkg/workflow/slot"
)

// HourAvailability is the state of one bookable hour.
type HourAvailability struct {
	Hour int        `json:"hour"`
	Free bool       `json:"free"`
	Hold slot.State `json:"state"`
}

// Availability lists the bookable hours of a resource on a date.
type Availability struct {
	Resource string             `json:"resource"`
	Date     string             `json:"date"`
	Hours    []HourAvailability `json:"hours"`
}

// FreeHours returns the hours that can be booked.
func (a *Availability) FreeHours() []int {
	var free []int
	for _, h := range a.Hours {
		if h.Free {
			free = append(free, h.Hour)
		}
	}
	return free
}

// Availability reports, for every business hour of date, whether it is
// free. An hour is taken while a hold is active or a booking occupies it.
func (d Deps) Availability(ctx context.Context, resource, date string) (*Availability, error) {
	if resource == "" {
		resource = d.Policy.Resource
	}
	if err := (slot.Key{Resource: resource, Date: date, Hour: d.Policy.OpenHour}).Validate(); err != nil {
		return nil, err
	}

	bookings, err := d.Records.ListBookings(ctx, resource, date)
	if err != nil {
		return nil, err
	}

	out := &Availability{Resource: resource, Date: date}
	for hour := d.Policy.OpenHour; hour < d.Policy.CloseHour; hour++ {
		hold, err := d.Slots.Status(ctx, slot.Key{Resource: resource, Date: date, Hour: hour})
		if err != nil {
			return nil, err
		}
		booked := false
		for _, b := range bookings {
			if b.Hour == hour && occupies(b, hold) {
				booked = true
				break
			}
		}
		out.Hours = append(out.Hours, HourAvailability{
			Hour: hour,
			Free: !booked && hold.State == slot.StateFree,
			Hold: hold.State,
		})
	}
	return out, nil
}

// occupies reports whether b takes its hour given the slot's current hold.
// A pending booking counts only while its instance still holds the slot, so
// a booking abandoned before confirmation lapses with the hold window.
func occupies(b model.Booking, hold slot.Hold) bool {
	if b.Status != model.BookingPending {
		return true
	}
	if hold.State == slot.StateFree {
		return false
	}
	return b.InstanceID == "" || hold.Owner == b.InstanceID
}
