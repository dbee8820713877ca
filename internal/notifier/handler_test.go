package notifier

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"slotbook/pkg/kafka"
	"slotbook/pkg/logger"
	"slotbook/pkg/model"
)

func newTestHandler() *Handler {
	return NewHandler(logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT}))
}

func eventMessage(t *testing.T, eventType string, event model.BookingEvent) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return kafka.Message{
		Key:   event.OwnerID,
		Value: payload,
		Headers: map[string]string{
			kafka.HeaderEventID:   "evt-1",
			kafka.HeaderEventType: eventType,
		},
	}
}

func TestHandleAcceptsBookingEvents(t *testing.T) {
	h := newTestHandler()
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	event := model.BookingEvent{
		BookingID:  "booking-1",
		OwnerID:    "owner-1",
		Title:      "Team sync",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Status:     model.StatusActive,
		OccurredAt: start,
	}

	for _, eventType := range []string{
		model.EventBookingCreated,
		model.EventBookingRescheduled,
		model.EventBookingCancelled,
	} {
		if err := h.Handle(context.Background(), eventMessage(t, eventType, event)); err != nil {
			t.Errorf("expected %s to be handled, got %v", eventType, err)
		}
	}
}

func TestHandleDropsBadPayloadWithoutRetry(t *testing.T) {
	h := newTestHandler()

	msg := kafka.Message{
		Key:   "owner-1",
		Value: []byte("not json"),
		Headers: map[string]string{
			kafka.HeaderEventType: model.EventBookingCreated,
		},
	}
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Errorf("undecodable payload must be dropped, not retried, got %v", err)
	}
}

func TestHandleDropsUnknownEventType(t *testing.T) {
	h := newTestHandler()
	event := model.BookingEvent{BookingID: "booking-1", OwnerID: "owner-1"}

	if err := h.Handle(context.Background(), eventMessage(t, "booking.exploded", event)); err != nil {
		t.Errorf("unknown event type must be dropped, got %v", err)
	}
}
