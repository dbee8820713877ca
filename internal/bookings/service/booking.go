package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	bookingserrors "slotbook/internal/bookings/errors"
	"slotbook/internal/bookings/repository"
	"slotbook/internal/bookings/validator"
	"slotbook/pkg/config"
	apperrors "slotbook/pkg/errors"
	"slotbook/pkg/kafka"
	"slotbook/pkg/model"
)

const eventSource = "bookings"

// EventPublisher emits booking lifecycle events. Publishing is best-effort:
// the booking outcome never depends on the broker.
type EventPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type BookingService interface {
	Create(ctx context.Context, booking *model.Booking) error
	Reschedule(ctx context.Context, ownerID, id string, updates *model.BookingUpdate) (*model.Booking, error)
	Cancel(ctx context.Context, ownerID, id string) error
	GetByID(ctx context.Context, ownerID, id string) (*model.Booking, error)
	List(ctx context.Context, ownerID string, from, to *time.Time, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, int64, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	lockRepo  repository.SlotLockRepository
	validator *validator.BookingValidator
	policy    ConflictPolicy
	publisher EventPublisher
	cfg       *config.Config
}

// NewBookingService wires the booking lifecycle. publisher may be nil when
// eventing is disabled.
func NewBookingService(
	repo repository.BookingRepository,
	lockRepo repository.SlotLockRepository,
	validator *validator.BookingValidator,
	policy ConflictPolicy,
	publisher EventPublisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		lockRepo:  lockRepo,
		validator: validator,
		policy:    policy,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Create books a slot. The policy pre-check runs optimistically outside the
// store; the store repeats the overlap check transactionally, so a race
// between two writers surfaces as ErrOverlap from CreateIfFree rather than
// a double booking.
func (s *bookingService) Create(ctx context.Context, booking *model.Booking) error {
	if booking.OwnerID == "" {
		return apperrors.InvalidInput("Owner ID cannot be empty")
	}

	// Identity and status are owned by the lifecycle, not the payload: every
	// booking is born Active and the store assigns its id.
	booking.ID = ""
	booking.Status = model.StatusActive
	if err := s.validate(booking); err != nil {
		return err
	}

	lockID, err := s.acquireSlotLock(ctx, booking.OwnerID, booking.StartTime)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := s.releaseSlotLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release slot lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	if err := s.policy.Decide(ctx, booking.OwnerID, booking.Range(), ""); err != nil {
		return err
	}

	if err := s.repo.CreateIfFree(ctx, booking); err != nil {
		if errors.Is(err, bookingserrors.ErrOverlap) {
			return apperrors.Conflict(
				"Requested range overlaps an existing booking",
				apperrors.ReasonLocalOverlap,
			)
		}
		if apperrors.IsAppError(err) {
			return err
		}
		s.cfg.Log.Error("Failed to create booking", "error", err)
		return apperrors.Internal("Failed to create booking", err)
	}

	s.cfg.Log.Info("Booking created",
		"id", booking.ID,
		"owner_id", booking.OwnerID,
		"start_time", booking.StartTime,
		"end_time", booking.EndTime,
	)
	s.publishEvent(ctx, model.EventBookingCreated, booking)
	return nil
}

// Reschedule moves a booking to a new range and/or title. The merged booking
// is re-validated in full, so the past-date rule applies to reschedules
// exactly as it does to creation; the booking's own range never counts as a
// conflict against itself.
func (s *bookingService) Reschedule(ctx context.Context, ownerID, id string, updates *model.BookingUpdate) (*model.Booking, error) {
	existing, err := s.authorizedBooking(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == model.StatusCancelled {
		return nil, apperrors.Conflict(
			"Cannot reschedule a cancelled booking",
			apperrors.ReasonAlreadyCancelled,
		)
	}

	if err := s.validator.ValidateUpdate(updates); err != nil {
		s.cfg.Log.Warn("Booking update validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("Invalid update input", map[string]any{"error": err.Error()})
	}

	merged := s.mergeBookingUpdates(existing, updates)
	if err := s.validate(merged); err != nil {
		return nil, err
	}

	lockID, err := s.acquireSlotLock(ctx, merged.OwnerID, merged.StartTime)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := s.releaseSlotLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release slot lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	if err := s.policy.Decide(ctx, merged.OwnerID, merged.Range(), id); err != nil {
		return nil, err
	}

	if err := s.repo.RescheduleIfFree(ctx, id, merged); err != nil {
		switch {
		case errors.Is(err, bookingserrors.ErrOverlap):
			return nil, apperrors.Conflict(
				"Requested range overlaps an existing booking",
				apperrors.ReasonLocalOverlap,
			)
		case errors.Is(err, bookingserrors.ErrAlreadyCancelled):
			return nil, apperrors.Conflict(
				"Cannot reschedule a cancelled booking",
				apperrors.ReasonAlreadyCancelled,
			)
		case errors.Is(err, bookingserrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if apperrors.IsAppError(err) {
			return nil, err
		}
		s.cfg.Log.Error("Failed to reschedule booking", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to reschedule booking", err)
	}

	s.cfg.Log.Info("Booking rescheduled",
		"id", id,
		"owner_id", ownerID,
		"start_time", merged.StartTime,
		"end_time", merged.EndTime,
	)
	s.publishEvent(ctx, model.EventBookingRescheduled, merged)
	return merged, nil
}

// Cancel is terminal and performs no conflict evaluation; freeing a slot
// cannot conflict with anything. Cancelling twice is a conflict, and the
// repository guarantees the second attempt leaves the document untouched.
func (s *bookingService) Cancel(ctx context.Context, ownerID, id string) error {
	existing, err := s.authorizedBooking(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Cancel(ctx, id, time.Now()); err != nil {
		switch {
		case errors.Is(err, bookingserrors.ErrAlreadyCancelled):
			return apperrors.Conflict(
				"Booking is already cancelled",
				apperrors.ReasonAlreadyCancelled,
			)
		case errors.Is(err, bookingserrors.ErrNotFound):
			return apperrors.NotFoundWithID("Booking", id)
		}
		s.cfg.Log.Error("Failed to cancel booking", "id", id, "error", err)
		return apperrors.Internal("Failed to cancel booking", err)
	}

	s.cfg.Log.Info("Booking cancelled", "id", id, "owner_id", ownerID)
	existing.Status = model.StatusCancelled
	s.publishEvent(ctx, model.EventBookingCancelled, existing)
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, ownerID, id string) (*model.Booking, error) {
	return s.authorizedBooking(ctx, ownerID, id)
}

func (s *bookingService) List(ctx context.Context, ownerID string, from, to *time.Time, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, int64, error) {
	if ownerID == "" {
		return nil, 0, apperrors.InvalidInput("Owner ID cannot be empty")
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, 0, apperrors.InvalidInput("Window start must be before window end")
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountByOwner(ctx, ownerID, from, to, status)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "owner_id", ownerID, "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindByOwner(ctx, ownerID, from, to, status, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "owner_id", ownerID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// --- Helpers ---

// authorizedBooking loads a booking and verifies the caller owns it.
func (s *bookingService) authorizedBooking(ctx context.Context, ownerID, id string) (*model.Booking, error) {
	if ownerID == "" {
		return nil, apperrors.InvalidInput("Owner ID cannot be empty")
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	if booking.OwnerID != ownerID {
		return nil, apperrors.Forbidden("Booking belongs to a different owner")
	}
	return booking, nil
}

func (s *bookingService) mergeBookingUpdates(existing *model.Booking, updates *model.BookingUpdate) *model.Booking {
	merged := *existing

	if updates.Title != "" {
		merged.Title = updates.Title
	}
	if updates.StartTime != nil {
		merged.StartTime = *updates.StartTime
	}
	if updates.EndTime != nil {
		merged.EndTime = *updates.EndTime
	}

	return &merged
}

func (s *bookingService) validate(booking *model.Booking) error {
	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

// acquireSlotLock takes a short-lived advisory lock on the slot coordinates
// so two requests for the same owner and start time serialize before the
// transactional re-check.
func (s *bookingService) acquireSlotLock(ctx context.Context, ownerID string, startTime time.Time) (string, error) {
	lockID := fmt.Sprintf("slot_lock_%s_%d", ownerID, startTime.Unix())

	lock := &model.SlotLock{
		ID:        lockID,
		ExpiresAt: time.Now().Add(s.cfg.SlotLockTTL),
	}

	if err := s.lockRepo.Create(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperrors.Conflict(
				"This time slot is currently being booked by another request. Please try again.",
				apperrors.ReasonLocalOverlap,
			)
		}
		return "", apperrors.Internal("Failed to acquire slot lock", err)
	}

	return lockID, nil
}

func (s *bookingService) releaseSlotLock(ctx context.Context, lockID string) error {
	return s.lockRepo.Delete(ctx, lockID)
}

func (s *bookingService) publishEvent(ctx context.Context, eventType string, booking *model.Booking) {
	if s.publisher == nil {
		return
	}

	event := model.BookingEvent{
		BookingID:  booking.ID,
		OwnerID:    booking.OwnerID,
		Title:      booking.Title,
		StartTime:  booking.StartTime,
		EndTime:    booking.EndTime,
		Status:     booking.Status,
		OccurredAt: time.Now().UTC(),
	}

	msg, err := kafka.NewMessage().
		WithKey(booking.OwnerID).
		WithValue(event).
		WithEventType(eventType).
		WithSource(eventSource).
		Build()
	if err != nil {
		s.cfg.Log.Warn("Failed to build booking event", "type", eventType, "error", err)
		return
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.cfg.Log.Warn("Failed to publish booking event",
			"type", eventType,
			"booking_id", booking.ID,
			"error", err,
		)
	}
}
