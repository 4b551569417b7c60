// Package scheduler assigns automatic publication timestamps from a channel's
// recurring daily slot window. The computation is pure: callers pass the set
// of timestamps already claimed by other posts.
package scheduler

import (
	"time"

	"postline-bot/internal/database/models"
)

// NextAutoSlot returns the first free slot for the channel at or after now.
//
// The candidate is now rounded up to the next multiple of the slot step
// (strictly after now, the current instant is never reused), clamped into the
// daily window. Collisions with claimed timestamps advance the candidate one
// step at a time; exhausting the window or the safety bound rolls the whole
// window forward one day. Always terminates.
func NextAutoSlot(ch *models.Channel, now time.Time, claimed []time.Time) time.Time {
	loc := ch.Location()
	now = now.In(loc)

	stepMin := ch.SlotStepMin
	if stepMin < 1 {
		stepMin = 1
	}
	step := time.Duration(stepMin) * time.Minute

	start := time.Date(now.Year(), now.Month(), now.Day(), ch.SlotStartHour, 0, 0, 0, loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), ch.SlotEndHour, ch.SlotEndMinute, 0, 0, loc)

	block := (now.Minute() / stepMin) * stepMin
	candidate := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), block, 0, 0, loc)
	if !candidate.After(now) {
		candidate = candidate.Add(step)
	}

	if candidate.Before(start) {
		candidate = start
	}
	if candidate.After(end) {
		start = start.AddDate(0, 0, 1)
		end = end.AddDate(0, 0, 1)
		candidate = start
	}

	used := make(map[int64]struct{}, len(claimed))
	for _, t := range claimed {
		used[t.Truncate(time.Minute).Unix()] = struct{}{}
	}

	// One day's worth of steps; past that the claim set cannot be satisfied
	// within the current window and the day rolls forward.
	safetyBound := 24*60/stepMin + 1
	safety := 0
	for {
		if _, taken := used[candidate.Truncate(time.Minute).Unix()]; !taken {
			return candidate
		}
		candidate = candidate.Add(step)
		safety++
		if candidate.After(end) || safety > safetyBound {
			start = start.AddDate(0, 0, 1)
			end = end.AddDate(0, 0, 1)
			candidate = start
			safety = 0
		}
	}
}
