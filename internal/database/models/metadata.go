package models

// Audit statuses recorded for media resolution attempts.
const (
	AuditPending    = "pending"
	AuditCached     = "cached"
	AuditSkipped    = "skipped"
	AuditUnresolved = "unresolved"
	AuditError      = "error"
)

// Metadata is the post's diagnostic record. Sections are additive: each
// pipeline step updates its own section and never replaces the whole map.
type Metadata struct {
	Article     *ArticleMeta     `bson:"article,omitempty"`
	Media       []MediaAudit     `bson:"media,omitempty"`
	Rewrite     *RewriteMeta     `bson:"rewrite,omitempty"`
	Publication *PublicationMeta `bson:"publication,omitempty"`
	// StaleSchedule is set when housekeeping reverted a stuck post to draft.
	StaleSchedule *StaleScheduleMeta `bson:"stale_schedule,omitempty"`
}

// ArticleSource is one upstream source the generation service based the post on.
type ArticleSource struct {
	URL   string `bson:"url"`
	Label string `bson:"label,omitempty"`
}

// ArticleMeta records the article sources reported with the draft.
type ArticleMeta struct {
	Sources []ArticleSource `bson:"sources,omitempty"`
}

// MediaAudit is a snapshot of one media descriptor and the outcome of its
// resolution attempt. Diagnostic only; dispatch never reads it.
type MediaAudit struct {
	Type      string            `bson:"type"`
	Resolver  string            `bson:"resolver,omitempty"`
	Caption   string            `bson:"caption,omitempty"`
	PostedAt  string            `bson:"posted_at,omitempty"`
	Source    string            `bson:"source,omitempty"`
	Reference map[string]string `bson:"reference,omitempty"`
	Status    string            `bson:"status"`
	Error     string            `bson:"error,omitempty"`
	AutoAlbum bool              `bson:"auto_album,omitempty"`
}

// RewriteMeta tracks an editor-requested rewrite round-trip.
type RewriteMeta struct {
	Status       string `bson:"status"`
	Prompt       string `bson:"prompt,omitempty"`
	RequestedAt  string `bson:"requested_at,omitempty"`
	CompletedAt  string `bson:"completed_at,omitempty"`
	TextChecksum string `bson:"text_checksum,omitempty"`
}

// PublicationMeta tracks the publication lifecycle of the post.
type PublicationMeta struct {
	Status          string  `bson:"status"`
	RequestedAt     string  `bson:"requested_at,omitempty"`
	CompletedAt     string  `bson:"completed_at,omitempty"`
	GroupMessageIDs []int64 `bson:"group_message_ids,omitempty"`
	TextMessageID   int64   `bson:"message_id,omitempty"`
	FailureReason   string  `bson:"failure_reason,omitempty"`
}

// StaleScheduleMeta records a housekeeping revert of a stuck schedule.
type StaleScheduleMeta struct {
	RevertedAt     string `bson:"reverted_at"`
	PreviousStatus string `bson:"previous_status"`
	ScheduledAt    string `bson:"scheduled_at,omitempty"`
}
