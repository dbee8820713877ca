package model

import "time"

// Booking event types published to Kafka after successful writes.
const (
	EventBookingCreated     = "booking.created"
	EventBookingRescheduled = "booking.rescheduled"
	EventBookingCancelled   = "booking.cancelled"
)

// BookingEvent is the payload shared by all booking event types. Keyed by
// owner so one owner's events stay ordered within a partition.
type BookingEvent struct {
	BookingID  string        `json:"booking_id"`
	OwnerID    string        `json:"owner_id"`
	Title      string        `json:"title"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Status     BookingStatus `json:"status"`
	OccurredAt time.Time     `json:"occurred_at"`
}
