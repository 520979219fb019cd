package quota

import (
	"time"

	"github.com/portraitlab/server/internal/model"
)

// FreePeriod is the length of a free-tier quota period.
const FreePeriod = 30 * 24 * time.Hour

// Source identifies which counter pays for a generation.
type Source string

const (
	SourceSubscription Source = "subscription"
	SourceFree         Source = "free"
)

// String returns the string representation of the source.
func (s Source) String() string {
	return string(s)
}

// RolloverFree applies the free-tier period policy. It returns the effective
// last reset date and whether the counter must be zeroed.
//
// The reset date advances by whole periods so the cadence stays anchored to
// the first reset no matter how late the next read happens.
func RolloverFree(lastReset, now time.Time) (time.Time, bool) {
	if lastReset.IsZero() {
		return now, true
	}
	if now.Before(lastReset.Add(FreePeriod)) {
		return lastReset, false
	}
	steps := now.Sub(lastReset) / FreePeriod
	return lastReset.Add(steps * FreePeriod), true
}

// NextFreeReset returns when a free counter reset at lastReset rolls over.
func NextFreeReset(lastReset time.Time) time.Time {
	return lastReset.Add(FreePeriod)
}

// RolloverSubscription applies the subscription period policy. The counter
// resets once per billing boundary: when it was last reset before the current
// period started, or when the period has ended and the counter was not reset
// since. The boundaries themselves belong to billing and are never moved.
func RolloverSubscription(sub *model.Subscription, now time.Time) (time.Time, bool) {
	last := sub.LastResetDate
	if last.Before(sub.CurrentPeriodStart) {
		return now, true
	}
	if !now.Before(sub.CurrentPeriodEnd) && last.Before(sub.CurrentPeriodEnd) {
		return now, true
	}
	return last, false
}
