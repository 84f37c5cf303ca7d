package domain

// FileCache is a write-once, content-addressed cache of raw media bytes
// keyed by the file host's file id. It saves a round trip to the media
// host for thumbnails (embedding input) and website serving.
type FileCache struct {
	ID   string `gorm:"primaryKey;type:text" json:"id"`
	Data []byte `gorm:"type:blob;not null" json:"-"`
}

// TableName returns the database table name for FileCache.
func (FileCache) TableName() string {
	return "files_cache"
}
