package domain

import "time"

// PublishStatus represents the moderation/visibility state of a meme.
// Only Published memes are projected into the vector index and served
// on the public website.
type PublishStatus string

const (
	PublishStatusDraft     PublishStatus = "draft"
	PublishStatusPublished PublishStatus = "published"
	PublishStatusTrash     PublishStatus = "trash"
)

// MediaType represents the kind of media a meme carries.
type MediaType string

const (
	MediaTypePhoto     MediaType = "photo"
	MediaTypeVideo     MediaType = "video"
	MediaTypeAnimation MediaType = "animation"
)

// ReferenceLanguage is the locale whose translation is used to build
// embedding text and website metadata when present.
const ReferenceLanguage = "ru"

// Meme represents a single meme record: media references, moderation
// state, and audit fields. Translations live in their own table.
type Meme struct {
	ID              int32         `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug            string        `gorm:"type:text;not null;uniqueIndex:idx_memes_slug" json:"slug"`
	PublishStatus   PublishStatus `gorm:"type:text;not null;index:idx_memes_status;default:draft" json:"publish_status"`
	MediaType       MediaType     `gorm:"type:text;not null" json:"media_type"`
	MimeType        string        `gorm:"type:text;not null" json:"mime_type"`
	Width           int           `gorm:"not null" json:"width"`
	Height          int           `gorm:"not null" json:"height"`
	Duration        int           `gorm:"not null" json:"duration"`
	Text            *string       `gorm:"type:text" json:"text,omitempty"`
	Source          *string       `gorm:"type:text" json:"source,omitempty"`
	TgUniqueID      string        `gorm:"type:text;not null;uniqueIndex:idx_memes_tg_unique" json:"tg_unique_id"`
	TgID            string        `gorm:"type:text;not null" json:"tg_id"`
	ContentLength   int           `gorm:"not null" json:"content_length"`
	ThumbMimeType   string        `gorm:"type:text;not null" json:"thumb_mime_type"`
	ThumbWidth      int           `gorm:"not null" json:"thumb_width"`
	ThumbHeight     int           `gorm:"not null" json:"thumb_height"`
	ThumbTgID       string        `gorm:"type:text;not null" json:"thumb_tg_id"`
	ThumbContentLen int           `gorm:"column:thumb_content_length;not null" json:"thumb_content_length"`
	ControlMsgID    int           `gorm:"column:control_message_id;not null" json:"control_message_id"`
	CreatedBy       int64         `gorm:"not null" json:"created_by"`
	CreationTime    time.Time     `gorm:"not null;autoCreateTime" json:"creation_time"`
	LastEditedBy    int64         `gorm:"not null" json:"last_edited_by"`
	LastEditionTime time.Time     `gorm:"not null" json:"last_edition_time"`
}

// TableName returns the database table name for Meme.
func (Meme) TableName() string {
	return "memes"
}

// IsPublished reports whether the meme should be present in the vector
// index and on the public website.
func (m *Meme) IsPublished() bool {
	return m.PublishStatus == PublishStatusPublished
}

// MemeWithTranslations bundles a meme with all of its translations,
// ordered with the reference language first when present.
type MemeWithTranslations struct {
	Meme         Meme
	Translations []Translation
}
