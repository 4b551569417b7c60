package scheduler

import (
	"testing"
	"time"

	"postline-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannel() *models.Channel {
	return &models.Channel{
		Timezone:      "Europe/Warsaw",
		SlotStepMin:   30,
		SlotStartHour: 6,
		SlotEndHour:   23,
		SlotEndMinute: 30,
	}
}

func warsaw(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	return loc
}

func TestNextAutoSlotRoundsUpToNextStep(t *testing.T) {
	ch := testChannel()
	loc := warsaw(t)

	now := time.Date(2025, 3, 10, 14, 5, 0, 0, loc)
	slot := NextAutoSlot(ch, now, nil)

	assert.Equal(t, time.Date(2025, 3, 10, 14, 30, 0, 0, loc), slot)
}

func TestNextAutoSlotSkipsClaimedSlots(t *testing.T) {
	ch := testChannel()
	loc := warsaw(t)

	now := time.Date(2025, 3, 10, 14, 5, 0, 0, loc)
	first := NextAutoSlot(ch, now, nil)

	second := NextAutoSlot(ch, now, []time.Time{first})
	assert.Equal(t, time.Date(2025, 3, 10, 15, 0, 0, 0, loc), second)

	third := NextAutoSlot(ch, now, []time.Time{first, second})
	assert.Equal(t, time.Date(2025, 3, 10, 15, 30, 0, 0, loc), third)
}

func TestNextAutoSlotNeverReturnsCurrentInstant(t *testing.T) {
	ch := testChannel()
	loc := warsaw(t)

	// Exactly on a step boundary: the same instant must not be reused.
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, loc)
	slot := NextAutoSlot(ch, now, nil)

	assert.Equal(t, time.Date(2025, 3, 10, 15, 0, 0, 0, loc), slot)
}

func TestNextAutoSlotClampsBeforeWindowStart(t *testing.T) {
	ch := testChannel()
	loc := warsaw(t)

	now := time.Date(2025, 3, 10, 3, 12, 0, 0, loc)
	slot := NextAutoSlot(ch, now, nil)

	assert.Equal(t, time.Date(2025, 3, 10, 6, 0, 0, 0, loc), slot)
}

func TestNextAutoSlotRollsToNextDayAfterWindowEnd(t *testing.T) {
	ch := testChannel()
	loc := warsaw(t)

	now := time.Date(2025, 3, 10, 23, 45, 0, 0, loc)
	slot := NextAutoSlot(ch, now, nil)

	assert.Equal(t, time.Date(2025, 3, 11, 6, 0, 0, 0, loc), slot)
}

func TestNextAutoSlotRollsToNextDayWhenWindowExhausted(t *testing.T) {
	ch := testChannel()
	loc := warsaw(t)

	now := time.Date(2025, 3, 10, 14, 5, 0, 0, loc)

	// Claim every slot of the current day's window.
	var claimed []time.Time
	for c := time.Date(2025, 3, 10, 6, 0, 0, 0, loc); !c.After(time.Date(2025, 3, 10, 23, 30, 0, 0, loc)); c = c.Add(30 * time.Minute) {
		claimed = append(claimed, c)
	}

	slot := NextAutoSlot(ch, now, claimed)
	assert.Equal(t, time.Date(2025, 3, 11, 6, 0, 0, 0, loc), slot)
}

func TestNextAutoSlotTerminatesOnFullyClaimedDays(t *testing.T) {
	ch := testChannel()
	loc := warsaw(t)

	now := time.Date(2025, 3, 10, 10, 0, 0, 0, loc)

	// Two full days claimed; the allocator must still terminate and land on
	// the third day's window start.
	var claimed []time.Time
	for day := 0; day < 2; day++ {
		dayStart := time.Date(2025, 3, 10+day, 6, 0, 0, 0, loc)
		dayEnd := time.Date(2025, 3, 10+day, 23, 30, 0, 0, loc)
		for c := dayStart; !c.After(dayEnd); c = c.Add(30 * time.Minute) {
			claimed = append(claimed, c)
		}
	}

	done := make(chan time.Time, 1)
	go func() { done <- NextAutoSlot(ch, now, claimed) }()

	select {
	case slot := <-done:
		assert.Equal(t, time.Date(2025, 3, 12, 6, 0, 0, 0, loc), slot)
	case <-time.After(5 * time.Second):
		t.Fatal("NextAutoSlot did not terminate")
	}
}

func TestNextAutoSlotIsDeterministic(t *testing.T) {
	ch := testChannel()
	loc := warsaw(t)

	now := time.Date(2025, 3, 10, 9, 41, 0, 0, loc)
	claimed := []time.Time{
		time.Date(2025, 3, 10, 10, 0, 0, 0, loc),
		time.Date(2025, 3, 10, 10, 30, 0, 0, loc),
	}

	first := NextAutoSlot(ch, now, claimed)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, NextAutoSlot(ch, now, claimed))
	}

	// Result properties: on the step grid, inside the window, not claimed.
	assert.Equal(t, time.Date(2025, 3, 10, 11, 0, 0, 0, loc), first)
	assert.Zero(t, first.Minute()%ch.SlotStepMin)
	for _, c := range claimed {
		assert.NotEqual(t, c, first)
	}
}

func TestNextAutoSlotHandlesUTCInputTimes(t *testing.T) {
	ch := testChannel()
	loc := warsaw(t)

	// 13:05 UTC is 14:05 in Warsaw (CET+1 in March before DST switch is 13:05+1).
	now := time.Date(2025, 1, 10, 13, 5, 0, 0, time.UTC)
	slot := NextAutoSlot(ch, now, nil)

	assert.Equal(t, time.Date(2025, 1, 10, 14, 30, 0, 0, loc).Unix(), slot.Unix())
}

func TestNextAutoSlotMinimumStep(t *testing.T) {
	ch := testChannel()
	ch.SlotStepMin = 0 // invalid config clamps to one minute
	loc := warsaw(t)

	now := time.Date(2025, 3, 10, 14, 5, 30, 0, loc)
	slot := NextAutoSlot(ch, now, nil)

	assert.Equal(t, time.Date(2025, 3, 10, 14, 6, 0, 0, loc), slot)
}
