package repository

import (
	"context"
	"fmt"

	"github.com/memexpert/memexpert/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FileCacheRepository stores raw media bytes keyed by file ID. Entries
// are write-once: the bytes for a given file ID never change, so a
// conflicting insert is silently ignored.
type FileCacheRepository struct {
	db *gorm.DB
}

// NewFileCacheRepository creates a new FileCacheRepository.
func NewFileCacheRepository(db *gorm.DB) *FileCacheRepository {
	return &FileCacheRepository{db: db}
}

// Get retrieves cached file bytes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileID: file host identifier of the media.
// Returns:
//   - []byte: cached bytes if present.
//   - error: ErrNotFound when no entry exists, non-nil on query failure.
func (r *FileCacheRepository) Get(ctx context.Context, fileID string) ([]byte, error) {
	var entry domain.FileCache
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", fileID).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return entry.Data, nil
}

// Put stores file bytes under the given file ID. A second Put for the
// same ID is a no-op; the original bytes win.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileID: file host identifier of the media.
//   - data: raw media bytes.
// Returns:
//   - error: non-nil if the insert fails.
func (r *FileCacheRepository) Put(ctx context.Context, fileID string, data []byte) error {
	entry := domain.FileCache{ID: fileID, Data: data}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to cache file %s: %w", fileID, err)
	}
	return nil
}
