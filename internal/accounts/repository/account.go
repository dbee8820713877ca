package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"slotbook/pkg/config"
	"slotbook/pkg/model"
)

const (
	CollectionName = "CalendarAccounts"
)

// ErrNotConnected means the owner never linked an external calendar. This is
// a normal state, not a fault; callers typically treat the oracle as
// unavailable for such owners.
var ErrNotConnected = errors.New("no calendar account connected")

type AccountRepository interface {
	Upsert(ctx context.Context, account *model.CalendarAccount) error
	Get(ctx context.Context, ownerID string) (*model.CalendarAccount, error)
	IsConnected(ctx context.Context, ownerID string) (bool, error)
}

type mongoAccountRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoAccountRepository(cfg *config.Config) AccountRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAccountRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

// Upsert stores or refreshes the owner's calendar credentials. Reconnecting
// replaces the token set in place; one account per owner.
func (r *mongoAccountRepository) Upsert(ctx context.Context, account *model.CalendarAccount) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	account.UpdatedAt = now

	update := bson.M{
		"$set": bson.M{
			"provider":      account.Provider,
			"access_token":  account.AccessToken,
			"refresh_token": account.RefreshToken,
			"expires_at":    account.ExpiresAt,
			"updated_at":    account.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}

	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": account.OwnerID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert calendar account: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) Get(ctx context.Context, ownerID string) (*model.CalendarAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var account model.CalendarAccount
	err := r.collection.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("failed to find calendar account: %w", err)
	}

	return &account, nil
}

func (r *mongoAccountRepository) IsConnected(ctx context.Context, ownerID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": ownerID})
	if err != nil {
		return false, fmt.Errorf("failed to check calendar account: %w", err)
	}
	return count > 0, nil
}
