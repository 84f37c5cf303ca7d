package domain

// Translation holds the language-specific metadata of a meme. A meme has
// zero or more translations keyed by (meme_id, language).
type Translation struct {
	MemeID      int32  `gorm:"primaryKey;autoIncrement:false" json:"meme_id"`
	Language    string `gorm:"primaryKey;type:char(2)" json:"language"`
	Title       string `gorm:"type:text;not null" json:"title"`
	Caption     string `gorm:"type:text;not null" json:"caption"`
	Description string `gorm:"type:text;not null" json:"description"`
}

// TableName returns the database table name for Translation.
func (Translation) TableName() string {
	return "translations"
}
