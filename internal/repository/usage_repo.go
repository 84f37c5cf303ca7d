package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/memexpert/memexpert/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRepository records search queries and website visits, and derives
// the "recent" and "popular" fallback rankings from them.
type UsageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new UsageRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *UsageRepository: repository instance bound to db.
func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// CreateSearchLog appends a search log row. Called once per search,
// before results are computed, so abandoned searches are recorded too.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: searching user.
//   - query: raw query text; nil or empty marks a browse request.
// Returns:
//   - int64: ID of the inserted row, echoed back to the client so a
//     later chosen-result callback can reference it.
//   - error: non-nil if the insert fails.
func (r *UsageRepository) CreateSearchLog(ctx context.Context, userID int64, query *string) (int64, error) {
	log := domain.SearchLog{
		UserID: userID,
		Query:  query,
	}
	if err := r.db.WithContext(ctx).Create(&log).Error; err != nil {
		return 0, fmt.Errorf("failed to insert search log: %w", err)
	}
	return log.ID, nil
}

// SaveChosen records which meme the user picked from a result set and
// which ranking source produced it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - searchID: search log row to update.
//   - memeID: chosen meme.
//   - source: provenance tag ("r", "p", or "q").
// Returns:
//   - error: ErrNotFound when the search log row does not exist,
//     non-nil on update failure.
func (r *UsageRepository) SaveChosen(ctx context.Context, searchID int64, memeID int32, source string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.SearchLog{}).
		Where("id = ?", searchID).
		Updates(map[string]interface{}{
			"chosen_meme_id": memeID,
			"chosen_source":  source,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save chosen result: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentChosenIDs returns the user's most recently chosen meme IDs,
// newest first, deduplicated. Drives the "recent" portion of the
// empty-query fallback.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: user whose history is queried.
//   - limit: maximum number of distinct IDs to return.
// Returns:
//   - []int32: distinct chosen meme IDs, most recent first.
//   - error: non-nil if the query fails.
func (r *UsageRepository) RecentChosenIDs(ctx context.Context, userID int64, limit int) ([]int32, error) {
	// Over-fetch raw rows and deduplicate here: DISTINCT ON is
	// postgres-only and the history per user is small.
	var rows []domain.SearchLog
	if err := r.db.WithContext(ctx).
		Select("chosen_meme_id").
		Where("user_id = ?", userID).
		Where("chosen_meme_id IS NOT NULL").
		Order("id DESC").
		Limit(limit * 4).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get recent chosen memes: %w", err)
	}

	seen := make(map[int32]struct{}, limit)
	ids := make([]int32, 0, limit)
	for _, row := range rows {
		if row.ChosenMemeID == nil {
			continue
		}
		id := *row.ChosenMemeID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// CreateWebVisit records a page view of a meme on the public website.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - visit: visit record; CreationTime is filled on insert.
// Returns:
//   - error: non-nil if the insert fails.
func (r *UsageRepository) CreateWebVisit(ctx context.Context, visit *domain.WebVisit) error {
	if err := r.db.WithContext(ctx).Create(visit).Error; err != nil {
		return fmt.Errorf("failed to insert web visit: %w", err)
	}
	return nil
}

// PopularIDs returns meme IDs ranked by non-bot website visits inside
// the given window, most visited first. Ties break on meme ID ascending
// so the ranking is stable.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - window: how far back visits count.
//   - limit: maximum number of IDs to return.
// Returns:
//   - []int32: meme IDs by descending visit count.
//   - error: non-nil if the query fails.
func (r *UsageRepository) PopularIDs(ctx context.Context, window time.Duration, limit int) ([]int32, error) {
	since := time.Now().UTC().Add(-window)

	type visitCount struct {
		MemeID int32
	}
	var rows []visitCount
	if err := r.db.WithContext(ctx).
		Model(&domain.WebVisit{}).
		Select("meme_id").
		Where("is_bot = ?", false).
		Where("creation_time >= ?", since).
		Group("meme_id").
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "COUNT(*) DESC, meme_id ASC"}}).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get popular memes: %w", err)
	}

	ids := make([]int32, len(rows))
	for i, row := range rows {
		ids[i] = row.MemeID
	}
	return ids, nil
}
