package domain

import "time"

// Result provenance tags attached to search results. Recorded next to
// the chosen meme so analytics can tell which ranking source produced it.
const (
	SourceRecent  = "r"
	SourcePopular = "p"
	SourceQuery   = "q"
)

// SearchLog is an append-only record of a search request. Every search
// writes one row, query text included even when empty; when the user picks
// a result, the row is updated with the chosen meme and its provenance.
// The per-user chosen history doubles as the "recent" fallback source.
type SearchLog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"not null;index:idx_search_logs_user" json:"user_id"`
	Query        *string   `gorm:"type:text" json:"query,omitempty"`
	ChosenMemeID *int32    `gorm:"index:idx_search_logs_chosen" json:"chosen_meme_id,omitempty"`
	ChosenSource *string   `gorm:"type:char(1)" json:"chosen_source,omitempty"`
	CreationTime time.Time `gorm:"not null;autoCreateTime" json:"creation_time"`
}

// TableName returns the database table name for SearchLog.
func (SearchLog) TableName() string {
	return "search_logs"
}

// WebVisit records a page view of a meme on the public website. Visits
// within a recent window, bots excluded, drive the "popular" fallback
// ranking for empty queries.
type WebVisit struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MemeID       int32     `gorm:"not null;index:idx_web_visits_meme" json:"meme_id"`
	UserAgent    string    `gorm:"type:text" json:"user_agent"`
	Referer      string    `gorm:"type:text" json:"referer"`
	IsBot        bool      `gorm:"not null;default:false" json:"is_bot"`
	CreationTime time.Time `gorm:"not null;autoCreateTime;index:idx_web_visits_time" json:"creation_time"`
}

// TableName returns the database table name for WebVisit.
func (WebVisit) TableName() string {
	return "web_visits"
}
