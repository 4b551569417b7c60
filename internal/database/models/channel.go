package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Channel is a publication target: one Telegram channel together with its
// content limits and the recurring daily slot window used for automatic
// scheduling. Channels are edited by an operator and read-only to the pipeline.
type Channel struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Slug        string             `bson:"slug"`
	TGChannelID string             `bson:"tg_channel_id"` // @name or numeric chat ID
	BotToken    string             `bson:"bot_token,omitempty"`

	// Content limits applied by the external generation service.
	Language string `bson:"language,omitempty"`
	MaxChars int    `bson:"max_chars"`
	EmojiMin int    `bson:"emoji_min"`
	EmojiMax int    `bson:"emoji_max"`

	// AutoSpoilerDefault marks photos as spoilers unless the descriptor says otherwise.
	AutoSpoilerDefault bool `bson:"auto_spoiler_default"`

	DraftTargetCount int `bson:"draft_target_count"`
	DraftTTLDays     int `bson:"draft_ttl_days"`

	// Recurring daily slot window, in the channel's local time zone.
	Timezone      string `bson:"timezone,omitempty"`
	SlotStepMin   int    `bson:"slot_step_min"`
	SlotStartHour int    `bson:"slot_start_hour"`
	SlotEndHour   int    `bson:"slot_end_hour"`
	SlotEndMinute int    `bson:"slot_end_minute"`

	CreatedAt time.Time `bson:"created_at,omitempty"`
}

const defaultTimezone = "Europe/Warsaw"

// Location resolves the channel's time zone, falling back to the default
// when the field is empty or unknown.
func (c *Channel) Location() *time.Location {
	name := c.Timezone
	if name == "" {
		name = defaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	return loc
}

// SlotStep returns the slot step, never below one minute.
func (c *Channel) SlotStep() time.Duration {
	step := c.SlotStepMin
	if step < 1 {
		step = 1
	}
	return time.Duration(step) * time.Minute
}

// DraftTTL returns the draft lifetime, defaulting to three days.
func (c *Channel) DraftTTL() time.Duration {
	days := c.DraftTTLDays
	if days <= 0 {
		days = 3
	}
	return time.Duration(days) * 24 * time.Hour
}
