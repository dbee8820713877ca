package validator

import (
	"strings"
	"testing"
	"time"

	"slotbook/pkg/logger"
	"slotbook/pkg/model"
)

func newTestValidator(t *testing.T, now time.Time) *BookingValidator {
	t.Helper()
	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.TEXT})
	v := NewBookingValidator(log)
	v.now = func() time.Time { return now }
	return v
}

func validBooking(now time.Time) *model.Booking {
	return &model.Booking{
		OwnerID:   "owner-1",
		Title:     "Dentist",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
		Status:    model.StatusActive,
	}
}

func TestValidateAcceptsFutureBooking(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := newTestValidator(t, now)

	if err := v.Validate(validBooking(now)); err != nil {
		t.Errorf("expected valid booking to pass, got %v", err)
	}
}

func TestValidateRejectsBadRange(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := newTestValidator(t, now)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		field string
	}{
		{"end before start", now.Add(2 * time.Hour), now.Add(time.Hour), "EndTime"},
		{"zero-length range", now.Add(time.Hour), now.Add(time.Hour), "EndTime"},
		{"range in the past", now.Add(-2 * time.Hour), now.Add(-time.Hour), "StartTime"},
		{"start in the past", now.Add(-time.Minute), now.Add(time.Hour), "StartTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBooking(now)
			b.StartTime = tt.start
			b.EndTime = tt.end

			err := v.Validate(b)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := newTestValidator(t, now)

	b := validBooking(now)
	b.OwnerID = ""
	b.Title = "x"

	err := v.Validate(b)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "OwnerID") {
		t.Errorf("expected OwnerID error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Title") {
		t.Errorf("expected Title error, got %v", err)
	}
}

func TestValidateUpdate(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := newTestValidator(t, now)

	start := now.Add(time.Hour)
	end := now.Add(2 * time.Hour)

	t.Run("partial update passes", func(t *testing.T) {
		if err := v.ValidateUpdate(&model.BookingUpdate{StartTime: &start}); err != nil {
			t.Errorf("expected partial update to pass, got %v", err)
		}
	})

	t.Run("inverted pair fails", func(t *testing.T) {
		if err := v.ValidateUpdate(&model.BookingUpdate{StartTime: &end, EndTime: &start}); err == nil {
			t.Error("expected inverted range to fail")
		}
	})

	t.Run("short title fails", func(t *testing.T) {
		if err := v.ValidateUpdate(&model.BookingUpdate{Title: "x"}); err == nil {
			t.Error("expected short title to fail")
		}
	})
}
