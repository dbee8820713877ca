package model

import "time"

// CalendarAccount holds the external calendar credentials for one owner.
// One document per owner; the refresh token is the connection marker. The
// access token is a cache and may be stale; the oracle refreshes it
// transparently.
type CalendarAccount struct {
	OwnerID      string     `json:"owner_id" bson:"_id"`
	Provider     string     `json:"provider" bson:"provider"`
	AccessToken  string     `json:"-" bson:"access_token,omitempty"`
	RefreshToken string     `json:"-" bson:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at"`
}

const ProviderGoogle = "google"
