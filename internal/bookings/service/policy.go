package service

import (
	"context"
	"fmt"
	"time"

	"slotbook/internal/bookings/repository"
	"slotbook/internal/calendar"
	"slotbook/pkg/config"
	apperrors "slotbook/pkg/errors"
	"slotbook/pkg/timerange"
)

// ConflictPolicy decides whether an owner may occupy a time range. The rules
// run in a fixed order and the first objection wins:
//
//  1. an active local booking overlapping the range rejects,
//  2. an external calendar reporting busy rejects,
//  3. an unreachable external calendar does NOT reject; the local store is
//     authoritative and the oracle only ever vetoes.
//
// excludeID carves one booking out of the local check so a reschedule does
// not collide with itself.
type ConflictPolicy interface {
	Decide(ctx context.Context, ownerID string, rng timerange.TimeRange, excludeID string) error
}

type conflictPolicy struct {
	repo   repository.BookingRepository
	oracle calendar.Oracle
	cfg    *config.Config
}

func NewConflictPolicy(repo repository.BookingRepository, oracle calendar.Oracle, cfg *config.Config) ConflictPolicy {
	return &conflictPolicy{
		repo:   repo,
		oracle: oracle,
		cfg:    cfg,
	}
}

func (p *conflictPolicy) Decide(ctx context.Context, ownerID string, rng timerange.TimeRange, excludeID string) error {
	overlap, err := p.repo.FindOverlap(ctx, ownerID, rng, excludeID)
	if err != nil {
		return apperrors.Internal("Failed to check existing bookings", err)
	}
	if overlap != nil {
		return apperrors.Conflict(fmt.Sprintf(
			"Requested range overlaps an existing booking (%s - %s)",
			overlap.StartTime.Format(time.RFC3339),
			overlap.EndTime.Format(time.RFC3339),
		), apperrors.ReasonLocalOverlap)
	}

	answer := p.oracle.QueryBusy(ctx, ownerID, rng)
	switch answer.Verdict {
	case calendar.VerdictBusy:
		return apperrors.Conflict(
			"External calendar reports the owner is busy in the requested range",
			apperrors.ReasonExternalBusy,
		)
	case calendar.VerdictUnavailable:
		p.cfg.Log.Warn("Calendar oracle unavailable, proceeding on local data only",
			"owner_id", ownerID,
			"reason", answer.Reason,
		)
	}

	return nil
}
