package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memexpert/memexpert/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a lookup resolves to no record.
var ErrNotFound = errors.New("record not found")

// MemeRepository handles meme, translation, and slug redirect data
// operations. Mutations run inside a single transaction so that slug
// allocation, redirect insertion, and the row write commit atomically.
type MemeRepository struct {
	db *gorm.DB
}

// NewMemeRepository creates a new MemeRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *MemeRepository: repository instance bound to db.
func NewMemeRepository(db *gorm.DB) *MemeRepository {
	return &MemeRepository{db: db}
}

// GetByID retrieves a meme by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: meme ID.
// Returns:
//   - *domain.Meme: meme record if found.
//   - error: ErrNotFound if absent, non-nil on query failure.
func (r *MemeRepository) GetByID(ctx context.Context, id int32) (*domain.Meme, error) {
	var meme domain.Meme
	if err := r.db.WithContext(ctx).First(&meme, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &meme, nil
}

// GetBySlug retrieves a meme addressed by its current slug.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - slug: current slug.
// Returns:
//   - *domain.Meme: meme record if found.
//   - error: ErrNotFound if absent, non-nil on query failure.
func (r *MemeRepository) GetBySlug(ctx context.Context, slug string) (*domain.Meme, error) {
	var meme domain.Meme
	if err := r.db.WithContext(ctx).First(&meme, "slug = ?", slug).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &meme, nil
}

// GetByTgUniqueID retrieves a meme by its unique file-host identifier.
// Used to detect re-submissions of media already in the system.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tgUniqueID: file-host unique ID of the primary media.
// Returns:
//   - *domain.Meme: meme record if found.
//   - error: ErrNotFound if absent, non-nil on query failure.
func (r *MemeRepository) GetByTgUniqueID(ctx context.Context, tgUniqueID string) (*domain.Meme, error) {
	var meme domain.Meme
	if err := r.db.WithContext(ctx).First(&meme, "tg_unique_id = ?", tgUniqueID).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &meme, nil
}

// ResolveSlugRedirect resolves a retired slug to the current slug of the
// meme that owned it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - slug: retired slug to resolve.
// Returns:
//   - string: current slug of the redirect target.
//   - error: ErrNotFound when no redirect exists, non-nil on query failure.
func (r *MemeRepository) ResolveSlugRedirect(ctx context.Context, slug string) (string, error) {
	var redirect domain.SlugRedirect
	if err := r.db.WithContext(ctx).First(&redirect, "slug = ?", slug).Error; err != nil {
		return "", wrapNotFound(err)
	}
	var meme domain.Meme
	if err := r.db.WithContext(ctx).Select("slug").First(&meme, "id = ?", redirect.MemeID).Error; err != nil {
		return "", wrapNotFound(err)
	}
	return meme.Slug, nil
}

// Translations retrieves all translations of a meme, reference language
// first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - memeID: meme identifier.
// Returns:
//   - []domain.Translation: translations ordered with the reference
//     language first, then alphabetically.
//   - error: non-nil if the query fails.
func (r *MemeRepository) Translations(ctx context.Context, memeID int32) ([]domain.Translation, error) {
	var translations []domain.Translation
	if err := r.db.WithContext(ctx).
		Where("meme_id = ?", memeID).
		Order(fmt.Sprintf("language = '%s' DESC, language ASC", domain.ReferenceLanguage)).
		Find(&translations).Error; err != nil {
		return nil, err
	}
	return translations, nil
}

// GetWithTranslations retrieves a meme together with its translations.
func (r *MemeRepository) GetWithTranslations(ctx context.Context, id int32) (*domain.MemeWithTranslations, error) {
	meme, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	translations, err := r.Translations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.MemeWithTranslations{Meme: *meme, Translations: translations}, nil
}

// ListPublishedByIDs retrieves Published memes matching the given IDs,
// ordered ascending by ID so callers can re-associate them with a ranked
// ID list via binary search.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: candidate meme IDs.
// Returns:
//   - []domain.Meme: matching Published memes, ascending by ID.
//   - error: non-nil if the query fails.
func (r *MemeRepository) ListPublishedByIDs(ctx context.Context, ids []int32) ([]domain.Meme, error) {
	if len(ids) == 0 {
		return []domain.Meme{}, nil
	}
	var memes []domain.Meme
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("publish_status = ?", domain.PublishStatusPublished).
		Order("id ASC").
		Find(&memes).Error; err != nil {
		return nil, fmt.Errorf("failed to get memes by IDs: %w", err)
	}
	return memes, nil
}

// ListAllWithTranslations retrieves every meme with its translations,
// ascending by ID. Used by reindex and heal sweeps.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.MemeWithTranslations: all memes, ascending by ID.
//   - error: non-nil if the query fails.
func (r *MemeRepository) ListAllWithTranslations(ctx context.Context) ([]domain.MemeWithTranslations, error) {
	var memes []domain.Meme
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&memes).Error; err != nil {
		return nil, err
	}

	var translations []domain.Translation
	if err := r.db.WithContext(ctx).
		Order(fmt.Sprintf("meme_id ASC, language = '%s' DESC, language ASC", domain.ReferenceLanguage)).
		Find(&translations).Error; err != nil {
		return nil, err
	}

	byMeme := make(map[int32][]domain.Translation, len(memes))
	for _, t := range translations {
		byMeme[t.MemeID] = append(byMeme[t.MemeID], t)
	}

	result := make([]domain.MemeWithTranslations, len(memes))
	for i, m := range memes {
		result[i] = domain.MemeWithTranslations{Meme: m, Translations: byMeme[m.ID]}
	}
	return result, nil
}

// CreateWithTranslation inserts a new meme and its initial translation in
// one transaction. The requested slug is adjusted with a numeric suffix
// until it is free.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meme: meme record to persist; ID and Slug may be rewritten.
//   - translation: initial translation; MemeID is filled in.
// Returns:
//   - error: non-nil if the transaction fails.
func (r *MemeRepository) CreateWithTranslation(ctx context.Context, meme *domain.Meme, translation *domain.Translation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := bruteforceAvailableSlug(tx, meme.Slug)
		if err != nil {
			return err
		}
		meme.Slug = slug
		meme.LastEditedBy = meme.CreatedBy
		meme.LastEditionTime = time.Now().UTC()

		if err := tx.Create(meme).Error; err != nil {
			return fmt.Errorf("failed to insert meme: %w", err)
		}

		translation.MemeID = meme.ID
		if err := tx.Create(translation).Error; err != nil {
			return fmt.Errorf("failed to insert translation: %w", err)
		}
		return nil
	})
}

// Update persists modified meme fields in one transaction. The existing
// row is locked for the duration; a slug change allocates a free slug and
// upserts a redirect from the old one.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meme: full meme record with updated fields; Slug may be rewritten.
//   - updatedBy: user performing the edit, recorded in audit fields.
// Returns:
//   - error: non-nil if the transaction fails.
func (r *MemeRepository) Update(ctx context.Context, meme *domain.Meme, updatedBy int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old domain.Meme
		if err := lockForUpdate(tx).
			First(&old, "id = ?", meme.ID).Error; err != nil {
			return wrapNotFound(err)
		}

		if meme.Slug != old.Slug {
			slug, err := bruteforceAvailableSlug(tx, meme.Slug)
			if err != nil {
				return err
			}
			meme.Slug = slug

			redirect := domain.SlugRedirect{Slug: old.Slug, MemeID: meme.ID}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{"meme_id"}),
			}).Create(&redirect).Error; err != nil {
				return fmt.Errorf("failed to upsert slug redirect: %w", err)
			}
		}

		meme.LastEditedBy = updatedBy
		meme.LastEditionTime = time.Now().UTC()
		if err := tx.Save(meme).Error; err != nil {
			return fmt.Errorf("failed to update meme: %w", err)
		}
		return nil
	})
}

// UpsertTranslation creates or replaces a translation and touches the
// owning meme's audit fields in the same transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - translation: translation keyed by (meme_id, language).
//   - updatedBy: user performing the edit.
// Returns:
//   - error: non-nil if the transaction fails.
func (r *MemeRepository) UpsertTranslation(ctx context.Context, translation *domain.Translation, updatedBy int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meme domain.Meme
		if err := lockForUpdate(tx).
			First(&meme, "id = ?", translation.MemeID).Error; err != nil {
			return wrapNotFound(err)
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "meme_id"}, {Name: "language"}},
			UpdateAll: true,
		}).Create(translation).Error; err != nil {
			return fmt.Errorf("failed to upsert translation: %w", err)
		}

		return tx.Model(&meme).Updates(map[string]interface{}{
			"last_edited_by":    updatedBy,
			"last_edition_time": time.Now().UTC(),
		}).Error
	})
}

// bruteforceAvailableSlug returns the requested slug if free, otherwise
// the first slug-N variant that is.
func bruteforceAvailableSlug(tx *gorm.DB, requested string) (string, error) {
	taken, err := slugTaken(tx, requested)
	if err != nil {
		return "", err
	}
	if !taken {
		return requested, nil
	}

	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", requested, i)
		taken, err := slugTaken(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// lockForUpdate applies a row lock where the engine supports it. SQLite
// serializes writers on its own and rejects FOR UPDATE syntax.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func slugTaken(tx *gorm.DB, slug string) (bool, error) {
	var count int64
	if err := tx.Model(&domain.Meme{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check slug availability: %w", err)
	}
	return count > 0, nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
