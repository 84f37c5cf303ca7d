package domain

// SlugRedirect maps a retired slug to the meme that used to own it.
// Renaming a meme inserts (or retargets) a redirect for its old slug, so
// stale links keep resolving.
type SlugRedirect struct {
	Slug   string `gorm:"primaryKey;type:text" json:"slug"`
	MemeID int32  `gorm:"not null" json:"meme_id"`
}

// TableName returns the database table name for SlugRedirect.
func (SlugRedirect) TableName() string {
	return "slug_redirects"
}
