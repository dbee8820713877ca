package notifier

import (
	"context"
	"fmt"

	"slotbook/pkg/kafka"
	"slotbook/pkg/logger"
	"slotbook/pkg/model"
)

// Handler consumes booking events and records them. It stands in for the
// downstream notification fan-out; swapping the body for an email or push
// sender changes nothing about the consumption contract.
type Handler struct {
	log *logger.Logger
}

func NewHandler(log *logger.Logger) *Handler {
	return &Handler{log: log}
}

func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var event model.BookingEvent
	if err := msg.DecodeValue(&event); err != nil {
		// Undecodable payloads are dropped, not retried; retrying cannot fix them.
		h.log.Error("Dropping undecodable booking event",
			"event_id", msg.GetEventID(),
			"topic", msg.Topic,
			"error", err,
		)
		return nil
	}

	eventType := msg.GetEventType()
	if err := validateEvent(eventType, &event); err != nil {
		h.log.Error("Dropping malformed booking event",
			"event_id", msg.GetEventID(),
			"type", eventType,
			"error", err,
		)
		return nil
	}

	h.log.Info("Booking event received",
		"type", eventType,
		"event_id", msg.GetEventID(),
		"booking_id", event.BookingID,
		"owner_id", event.OwnerID,
		"start_time", event.StartTime,
		"end_time", event.EndTime,
		"status", event.Status,
	)
	return nil
}

func validateEvent(eventType string, event *model.BookingEvent) error {
	switch eventType {
	case model.EventBookingCreated, model.EventBookingRescheduled, model.EventBookingCancelled:
	default:
		return fmt.Errorf("unknown event type %q", eventType)
	}
	if event.BookingID == "" || event.OwnerID == "" {
		return fmt.Errorf("event missing booking or owner id")
	}
	return nil
}
