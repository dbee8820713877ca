package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bookingserrors "slotbook/internal/bookings/errors"
	"slotbook/pkg/config"
	mongotx "slotbook/pkg/db/mongo"
	"slotbook/pkg/model"
	"slotbook/pkg/timerange"
)

const (
	CollectionName = "Bookings"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

// BookingRepository is the authoritative booking store. CreateIfFree,
// RescheduleIfFree and Cancel each run their conflict re-check and write as
// one atomic unit, so a decision taken here cannot be invalidated by a
// concurrent writer.
type BookingRepository interface {
	CreateIfFree(ctx context.Context, booking *model.Booking) error
	RescheduleIfFree(ctx context.Context, id string, booking *model.Booking) error
	Cancel(ctx context.Context, id string, now time.Time) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindOverlap(ctx context.Context, ownerID string, rng timerange.TimeRange, excludeID string) (*model.Booking, error)
	FindByOwner(ctx context.Context, ownerID string, from, to *time.Time, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, error)
	CountByOwner(ctx context.Context, ownerID string, from, to *time.Time, status model.BookingStatus) (int64, error)
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// A SessionContext cannot be wrapped without breaking transaction semantics,
// so inside a transaction the original context is returned with a no-op cancel.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) CreateIfFree(ctx context.Context, booking *model.Booking) error {
	return r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		conflict, err := r.FindOverlap(sessCtx, booking.OwnerID, booking.Range(), "")
		if err != nil {
			return err
		}
		if conflict != nil {
			return fmt.Errorf("%w: %s", bookingserrors.ErrOverlap, conflict.ID)
		}

		now := time.Now().UTC().Truncate(time.Millisecond)
		booking.CreatedAt = now
		booking.UpdatedAt = now

		result, err := r.collection.InsertOne(sessCtx, booking)
		if err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
			booking.ID = oid.Hex()
		}
		return nil
	})
}

func (r *mongoBookingRepository) RescheduleIfFree(ctx context.Context, id string, booking *model.Booking) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	return r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		conflict, err := r.FindOverlap(sessCtx, booking.OwnerID, booking.Range(), id)
		if err != nil {
			return err
		}
		if conflict != nil {
			return fmt.Errorf("%w: %s", bookingserrors.ErrOverlap, conflict.ID)
		}

		booking.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
		update := bson.M{
			"$set": bson.M{
				"title":      booking.Title,
				"start_time": booking.StartTime,
				"end_time":   booking.EndTime,
				"updated_at": booking.UpdatedAt,
			},
		}

		// Matching on status keeps the Active check inside the transaction;
		// a cancel committing concurrently cannot have its range rewritten.
		filter := bson.M{"_id": objectID, "status": model.StatusActive}
		result, err := r.collection.UpdateOne(sessCtx, filter, update)
		if err != nil {
			return fmt.Errorf("failed to reschedule booking: %w", err)
		}
		if result.MatchedCount == 0 {
			// Distinguish a missing booking from one cancelled mid-flight.
			if _, err := r.FindByID(sessCtx, id); err != nil {
				return err
			}
			return bookingserrors.ErrAlreadyCancelled
		}
		return nil
	})
}

// Cancel flips an active booking to cancelled. Cancellation is terminal: a
// booking that is already cancelled is left untouched, updated_at included.
func (r *mongoBookingRepository) Cancel(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID, "status": model.StatusActive}
	update := bson.M{
		"$set": bson.M{
			"status":     model.StatusCancelled,
			"updated_at": now.UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if result.MatchedCount == 0 {
		// Distinguish a missing booking from one cancelled earlier.
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return bookingserrors.ErrAlreadyCancelled
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var booking model.Booking
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

// FindOverlap returns one active booking of the owner whose range intersects
// rng, or nil when the slot is free. Touching ranges do not intersect: the
// filter mirrors the half-open interval test (start < rng.End && end > rng.Start).
func (r *mongoBookingRepository) FindOverlap(ctx context.Context, ownerID string, rng timerange.TimeRange, excludeID string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter, err := buildOverlapFilter(ownerID, rng, excludeID)
	if err != nil {
		return nil, err
	}

	var booking model.Booking
	err = r.collection.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "start_time", Value: 1}})).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check overlapping bookings: %w", err)
	}

	return &booking, nil
}

func buildOverlapFilter(ownerID string, rng timerange.TimeRange, excludeID string) (bson.M, error) {
	filter := bson.M{
		"owner_id":   ownerID,
		"status":     model.StatusActive,
		"start_time": bson.M{"$lt": rng.End},
		"end_time":   bson.M{"$gt": rng.Start},
	}

	if excludeID != "" {
		objectID, err := primitive.ObjectIDFromHex(excludeID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, excludeID)
		}
		filter["_id"] = bson.M{"$ne": objectID}
	}

	return filter, nil
}

func (r *mongoBookingRepository) FindByOwner(
	ctx context.Context,
	ownerID string,
	from, to *time.Time,
	status model.BookingStatus,
	limit int, offset int64,
) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := buildOwnerFilter(ownerID, from, to, status)

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) CountByOwner(
	ctx context.Context,
	ownerID string,
	from, to *time.Time,
	status model.BookingStatus,
) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildOwnerFilter(ownerID, from, to, status))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func buildOwnerFilter(ownerID string, from, to *time.Time, status model.BookingStatus) bson.M {
	filter := bson.M{
		"owner_id": ownerID,
	}

	if status != "" {
		filter["status"] = status
	}

	// Window filtering uses the same intersection test as the conflict check:
	// a booking is in the window when it overlaps [from, to).
	if from != nil {
		filter["end_time"] = bson.M{"$gt": *from}
	}
	if to != nil {
		filter["start_time"] = bson.M{"$lt": *to}
	}

	return filter
}
