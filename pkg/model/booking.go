package model

import (
	"time"

	"slotbook/pkg/timerange"
)

// BookingStatus is the two-state lifecycle of a booking. A booking is never
// physically deleted: cancellation is the terminal state.
type BookingStatus string

const (
	StatusActive    BookingStatus = "active"
	StatusCancelled BookingStatus = "cancelled"
)

// Booking is a reserved time slot on its owner's calendar. Documents are
// owned exclusively by the bookings repository; services hold transient
// copies only.
type Booking struct {
	ID        string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	OwnerID   string        `json:"owner_id" bson:"owner_id" validate:"required"`
	Title     string        `json:"title" bson:"title" validate:"required,min=2,max=200"`
	StartTime time.Time     `json:"start_time" bson:"start_time" validate:"required"`
	EndTime   time.Time     `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Status    BookingStatus `json:"status" bson:"status" validate:"required,oneof=active cancelled"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt time.Time     `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

// Range returns the booking's interval as a value type. The struct keeps the
// endpoints flat for bson/json, so this is derived on demand.
func (b *Booking) Range() timerange.TimeRange {
	return timerange.TimeRange{Start: b.StartTime, End: b.EndTime}
}

// BookingUpdate carries a partial reschedule: nil fields keep their current
// value. Status is deliberately absent; the only transition goes through
// the cancel operation.
type BookingUpdate struct {
	Title     string     `json:"title,omitempty" validate:"omitempty,min=2,max=200"`
	StartTime *time.Time `json:"start_time,omitempty" validate:"omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty" validate:"omitempty"`
}
