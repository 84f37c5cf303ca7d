package service

import (
	"context"
	"fmt"
	"time"

	"github.com/memexpert/memexpert/internal/domain"
	"github.com/memexpert/memexpert/internal/logger"
	"github.com/memexpert/memexpert/internal/repository"
)

// VectorIndex is the subset of the vector store the index maintainer
// and the query engine depend on.
type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	RecreateCollection(ctx context.Context) error
	Upsert(ctx context.Context, memeID int32, vectors map[string][]float32, publishStatus string) error
	Delete(ctx context.Context, memeID int32) error
	PointExists(ctx context.Context, memeID int32) (bool, error)
	ListPointIDs(ctx context.Context) ([]int32, error)
	QueryNearest(ctx context.Context, space string, vector []float32, limit int, onlyPublished bool) ([]repository.ScoredPoint, error)
	QueryNearestByID(ctx context.Context, space string, memeID int32, limit int, onlyPublished bool) ([]repository.ScoredPoint, error)
}

// MemeLister iterates documents for reindex and heal sweeps.
type MemeLister interface {
	ListAllWithTranslations(ctx context.Context) ([]domain.MemeWithTranslations, error)
}

// ThumbnailSource returns the thumbnail bytes that feed a meme's image
// embedding.
type ThumbnailSource interface {
	ThumbnailBytes(ctx context.Context, meme *domain.Meme) ([]byte, error)
}

// IndexerConfig holds configuration for the index maintainer.
type IndexerConfig struct {
	TextSpace   string
	ImageSpace  string
	PacingDelay time.Duration // inter-call delay during reindex/heal
}

// Indexer keeps the vector index an eventually-consistent projection of
// published memes: one point per published meme, no point otherwise.
type Indexer struct {
	memes  MemeLister
	index  VectorIndex
	embed  EmbeddingProvider
	thumbs ThumbnailSource
	logger *logger.Logger

	textSpace   string
	imageSpace  string
	pacingDelay time.Duration
}

// NewIndexer creates a new Indexer.
func NewIndexer(
	memes MemeLister,
	index VectorIndex,
	embed EmbeddingProvider,
	thumbs ThumbnailSource,
	log *logger.Logger,
	cfg *IndexerConfig,
) *Indexer {
	return &Indexer{
		memes:       memes,
		index:       index,
		embed:       embed,
		thumbs:      thumbs,
		logger:      log,
		textSpace:   cfg.TextSpace,
		imageSpace:  cfg.ImageSpace,
		pacingDelay: cfg.PacingDelay,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *Indexer) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// SyncMeme projects one meme into the vector index. Unpublished memes
// get their point deleted; published memes get both embeddings computed
// and the point upserted in one call. Both vectors are computed before
// anything is written so a provider failure never produces a point with
// one space updated and the other stale.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meme: meme with its translations.
//   - imageVector: optional precomputed image embedding; pass nil to
//     compute it from the thumbnail bytes.
// Returns:
//   - error: non-nil if an embedding call or the index write fails. The
//     database row is already committed when this runs; a failure here
//     leaves staleness for Heal to repair.
func (s *Indexer) SyncMeme(ctx context.Context, meme *domain.MemeWithTranslations, imageVector []float32) error {
	ctx = logger.WithField(ctx, logger.FieldMemeID, meme.Meme.ID)

	if !meme.Meme.IsPublished() {
		if err := s.index.Delete(ctx, meme.Meme.ID); err != nil {
			return fmt.Errorf("failed to remove meme %d from index: %w", meme.Meme.ID, err)
		}
		s.log(ctx).Debug("Removed unpublished meme from index")
		return nil
	}

	text := BuildEmbeddingText(&meme.Meme, meme.Translations)
	textVector, err := s.embed.EmbedText(ctx, text, EmbedPurposePassage)
	if err != nil {
		return fmt.Errorf("failed to embed text for meme %d: %w", meme.Meme.ID, err)
	}

	if imageVector == nil {
		thumb, err := s.thumbs.ThumbnailBytes(ctx, &meme.Meme)
		if err != nil {
			return fmt.Errorf("failed to fetch thumbnail for meme %d: %w", meme.Meme.ID, err)
		}
		imageVector, err = s.embed.EmbedImage(ctx, thumb, EmbedPurposePassage)
		if err != nil {
			return fmt.Errorf("failed to embed image for meme %d: %w", meme.Meme.ID, err)
		}
	}

	vectors := map[string][]float32{
		s.textSpace:  textVector,
		s.imageSpace: imageVector,
	}
	if err := s.index.Upsert(ctx, meme.Meme.ID, vectors, string(meme.Meme.PublishStatus)); err != nil {
		return fmt.Errorf("failed to upsert meme %d: %w", meme.Meme.ID, err)
	}
	s.log(ctx).Debug("Synced meme into index")
	return nil
}

// MaintenanceStats summarizes a reindex or heal run.
type MaintenanceStats struct {
	Total    int
	Synced   int
	Skipped  int
	Deleted  int
	Failed   int
	Duration time.Duration
}

// ReindexAll drops and recreates the collection, then re-syncs every
// meme ascending by ID with a fixed delay between embedding calls to
// stay under the provider's rate limit. There is no checkpointing; a
// crashed run is repeated from scratch.
// Parameters:
//   - ctx: context for cancellation; a cancel stops between memes.
// Returns:
//   - *MaintenanceStats: counts of synced/skipped/failed memes.
//   - error: non-nil if the collection rebuild or the store iteration
//     fails, or the context is cancelled. Per-meme sync failures are
//     counted and logged, not fatal.
func (s *Indexer) ReindexAll(ctx context.Context) (*MaintenanceStats, error) {
	start := time.Now()

	if err := s.index.RecreateCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to recreate collection: %w", err)
	}

	memes, err := s.memes.ListAllWithTranslations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list memes: %w", err)
	}

	stats := &MaintenanceStats{Total: len(memes)}
	s.log(ctx).WithField("total", len(memes)).Info("Starting full reindex")

	for i := range memes {
		meme := &memes[i]
		if !meme.Meme.IsPublished() {
			stats.Skipped++
			continue
		}
		if err := s.SyncMeme(ctx, meme, nil); err != nil {
			stats.Failed++
			s.log(ctx).WithField(logger.FieldMemeID, meme.Meme.ID).WithError(err).Error("Failed to reindex meme")
		} else {
			stats.Synced++
		}
		if err := s.pace(ctx); err != nil {
			return stats, err
		}
	}

	stats.Duration = time.Since(start)
	s.log(ctx).WithFields(logger.Fields{
		"synced":   stats.Synced,
		"skipped":  stats.Skipped,
		"failed":   stats.Failed,
		"duration": stats.Duration.String(),
	}).Info("Reindex finished")
	return stats, nil
}

// Heal reconciles the index with the store without a full rebuild:
// published memes missing their point are re-synced, and points whose
// meme is gone or no longer published are deleted. Sync calls are paced
// like reindex; deletes are not, they cost no embedding quota.
// Parameters:
//   - ctx: context for cancellation; a cancel stops between memes.
// Returns:
//   - *MaintenanceStats: counts of restored/deleted/failed points.
//   - error: non-nil if iteration fails or the context is cancelled.
func (s *Indexer) Heal(ctx context.Context) (*MaintenanceStats, error) {
	start := time.Now()

	memes, err := s.memes.ListAllWithTranslations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list memes: %w", err)
	}

	stats := &MaintenanceStats{Total: len(memes)}
	published := make(map[int32]struct{}, len(memes))

	for i := range memes {
		meme := &memes[i]
		if !meme.Meme.IsPublished() {
			continue
		}
		published[meme.Meme.ID] = struct{}{}

		exists, err := s.index.PointExists(ctx, meme.Meme.ID)
		if err != nil {
			return stats, fmt.Errorf("failed to check point %d: %w", meme.Meme.ID, err)
		}
		if exists {
			stats.Skipped++
			continue
		}

		if err := s.SyncMeme(ctx, meme, nil); err != nil {
			stats.Failed++
			s.log(ctx).WithField(logger.FieldMemeID, meme.Meme.ID).WithError(err).Error("Failed to heal meme")
		} else {
			stats.Synced++
		}
		if err := s.pace(ctx); err != nil {
			return stats, err
		}
	}

	// Reverse direction: drop points that no longer correspond to a
	// published meme.
	pointIDs, err := s.index.ListPointIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list index points: %w", err)
	}
	for _, id := range pointIDs {
		if _, ok := published[id]; ok {
			continue
		}
		if err := s.index.Delete(ctx, id); err != nil {
			stats.Failed++
			s.log(ctx).WithField(logger.FieldMemeID, id).WithError(err).Error("Failed to delete orphaned point")
			continue
		}
		stats.Deleted++
	}

	stats.Duration = time.Since(start)
	s.log(ctx).WithFields(logger.Fields{
		"restored": stats.Synced,
		"deleted":  stats.Deleted,
		"failed":   stats.Failed,
		"duration": stats.Duration.String(),
	}).Info("Heal finished")
	return stats, nil
}

// pace sleeps the configured inter-call delay, returning early if the
// context is cancelled.
func (s *Indexer) pace(ctx context.Context) error {
	if s.pacingDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.pacingDelay):
		return nil
	}
}
