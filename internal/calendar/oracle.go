package calendar

import (
	"context"

	"slotbook/pkg/timerange"
)

// Oracle answers whether an owner's external calendar has anything scheduled
// inside a time range. Implementations never return an error; every failure
// mode folds into an unavailable answer.
type Oracle interface {
	QueryBusy(ctx context.Context, ownerID string, rng timerange.TimeRange) Answer
}

// Verdict is the three-valued answer an external calendar gives about a time
// range. Unavailable is an answer, not an error: the conflict policy treats
// it as "no objection" so a dead calendar integration cannot block bookings.
type Verdict string

const (
	VerdictBusy        Verdict = "busy"
	VerdictFree        Verdict = "free"
	VerdictUnavailable Verdict = "unavailable"
)

// Answer pairs the verdict with a human-readable reason. Reason is only
// meaningful for unavailable answers, where it records why the oracle could
// not be consulted (timeout, no account linked, upstream 5xx).
type Answer struct {
	Verdict Verdict
	Reason  string
}

func Busy() Answer {
	return Answer{Verdict: VerdictBusy}
}

func Free() Answer {
	return Answer{Verdict: VerdictFree}
}

func Unavailable(reason string) Answer {
	return Answer{Verdict: VerdictUnavailable, Reason: reason}
}
