package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/memexpert/memexpert/internal/domain"
	"github.com/memexpert/memexpert/internal/logger"
	"github.com/memexpert/memexpert/internal/media"
	"github.com/memexpert/memexpert/internal/repository"
)

// ErrDuplicateMedia is returned when the exact same file was already
// submitted, detected by its unique file-host ID.
var ErrDuplicateMedia = errors.New("media already exists")

// NearDuplicateError is returned when a visually near-identical meme is
// already in the catalog. The caller can show it to the creator and
// retry with AllowDuplicate set.
type NearDuplicateError struct {
	Existing *domain.Meme
}

func (e *NearDuplicateError) Error() string {
	return fmt.Sprintf("near-duplicate of meme %d (%s)", e.Existing.ID, e.Existing.Slug)
}

// CreateMemeInput carries everything needed to create a meme. Title and
// Slug may be left empty to have metadata generated from the image.
type CreateMemeInput struct {
	Slug          string
	PublishStatus domain.PublishStatus
	MediaType     domain.MediaType
	MimeType      string
	Width         int
	Height        int
	Duration      int
	Text          *string
	Source        *string

	TgID          string
	TgUniqueID    string
	ContentLength int

	ThumbTgID       string
	ThumbMimeType   string
	ThumbWidth      int
	ThumbHeight     int
	ThumbContentLen int

	ControlMsgID int
	CreatedBy    int64

	Language    string
	Title       string
	Caption     string
	Description string

	// AllowDuplicate skips the near-duplicate rejection.
	AllowDuplicate bool
}

// ContentService owns the meme lifecycle: creation with duplicate
// detection and optional metadata generation, edits, translation
// upserts, and public reads. Every successful mutation triggers an
// index sync after the database transaction commits; the sync is not
// part of the transaction, and a failure between the two is repaired by
// the heal sweep.
type ContentService struct {
	memes    *repository.MemeRepository
	usage    *repository.UsageRepository
	indexer  *Indexer
	search   *SearchService
	embed    EmbeddingProvider
	media    *media.Service
	metadata *MetadataService // optional
	logger   *logger.Logger
}

// NewContentService creates a new content service.
// Parameters:
//   - memes: meme repository.
//   - usage: usage repository for visit recording.
//   - indexer: index maintainer invoked after mutations.
//   - search: search service used for near-duplicate detection.
//   - embed: embedding provider for the image vector.
//   - mediaSvc: media fetcher/mirror.
//   - metadata: optional metadata generator; nil disables generation.
//   - log: logger instance.
// Returns:
//   - *ContentService: initialized content service.
func NewContentService(
	memes *repository.MemeRepository,
	usage *repository.UsageRepository,
	indexer *Indexer,
	search *SearchService,
	embed EmbeddingProvider,
	mediaSvc *media.Service,
	metadata *MetadataService,
	log *logger.Logger,
) *ContentService {
	return &ContentService{
		memes:    memes,
		usage:    usage,
		indexer:  indexer,
		search:   search,
		embed:    embed,
		media:    mediaSvc,
		metadata: metadata,
		logger:   log,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ContentService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// CreateMeme creates a meme with its initial translation. The flow:
// reject exact re-submissions by unique file ID, embed the thumbnail
// and reject near-duplicates unless overridden, generate metadata from
// the image when none was supplied, commit the row, then sync the index
// reusing the already-computed image vector and mirror the media.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - input: creation input; see CreateMemeInput.
// Returns:
//   - *domain.MemeWithTranslations: the created meme; its Slug may
//     differ from the requested one if that was taken.
//   - error: ErrDuplicateMedia, *NearDuplicateError, or any
//     embedding/store/index failure.
func (s *ContentService) CreateMeme(ctx context.Context, input *CreateMemeInput) (*domain.MemeWithTranslations, error) {
	if _, err := s.memes.GetByTgUniqueID(ctx, input.TgUniqueID); err == nil {
		return nil, ErrDuplicateMedia
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	thumb, err := s.media.ThumbnailBytes(ctx, &domain.Meme{ThumbTgID: input.ThumbTgID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thumbnail: %w", err)
	}
	imageVector, err := s.embed.EmbedImage(ctx, thumb, EmbedPurposePassage)
	if err != nil {
		return nil, fmt.Errorf("failed to embed image: %w", err)
	}

	if !input.AllowDuplicate {
		dup, err := s.search.FindNearDuplicate(ctx, imageVector)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			return nil, &NearDuplicateError{Existing: dup}
		}
	}

	if input.Title == "" && s.metadata != nil {
		// ThumbnailBytes re-encodes the thumbnail as JPEG.
		meta, err := s.metadata.Generate(ctx, thumb, "image/jpeg")
		if err != nil {
			return nil, fmt.Errorf("failed to generate metadata: %w", err)
		}
		input.Title = meta.Title
		input.Caption = meta.Caption
		input.Description = meta.Description
		if input.Slug == "" {
			input.Slug = meta.Slug
		}
		if input.Text == nil && meta.Text != "" {
			text := meta.Text
			input.Text = &text
		}
	}
	if input.Slug == "" || input.Title == "" {
		return nil, fmt.Errorf("slug and title are required")
	}
	language := input.Language
	if language == "" {
		language = domain.ReferenceLanguage
	}

	meme := domain.Meme{
		Slug:            input.Slug,
		PublishStatus:   input.PublishStatus,
		MediaType:       input.MediaType,
		MimeType:        input.MimeType,
		Width:           input.Width,
		Height:          input.Height,
		Duration:        input.Duration,
		Text:            input.Text,
		Source:          input.Source,
		TgID:            input.TgID,
		TgUniqueID:      input.TgUniqueID,
		ContentLength:   input.ContentLength,
		ThumbTgID:       input.ThumbTgID,
		ThumbMimeType:   input.ThumbMimeType,
		ThumbWidth:      input.ThumbWidth,
		ThumbHeight:     input.ThumbHeight,
		ThumbContentLen: input.ThumbContentLen,
		ControlMsgID:    input.ControlMsgID,
		CreatedBy:       input.CreatedBy,
	}
	translation := domain.Translation{
		Language:    language,
		Title:       input.Title,
		Caption:     input.Caption,
		Description: input.Description,
	}
	if err := s.memes.CreateWithTranslation(ctx, &meme, &translation); err != nil {
		return nil, err
	}

	result := &domain.MemeWithTranslations{
		Meme:         meme,
		Translations: []domain.Translation{translation},
	}
	ctx = logger.WithField(ctx, logger.FieldMemeID, meme.ID)
	s.log(ctx).WithField(logger.FieldSlug, meme.Slug).Info("Created meme")

	if err := s.indexer.SyncMeme(ctx, result, imageVector); err != nil {
		return result, fmt.Errorf("meme %d created but index sync failed: %w", meme.ID, err)
	}
	if meme.IsPublished() {
		if err := s.media.Mirror(ctx, &meme); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to mirror media")
		}
	}
	return result, nil
}

// UpdateMeme persists edited meme fields and re-syncs the index. A slug
// change leaves a redirect behind; the returned meme carries the slug
// actually stored.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meme: full meme record with updated fields.
//   - updatedBy: user performing the edit.
// Returns:
//   - *domain.MemeWithTranslations: the updated meme with translations.
//   - error: non-nil if the update or the index sync fails.
func (s *ContentService) UpdateMeme(ctx context.Context, meme *domain.Meme, updatedBy int64) (*domain.MemeWithTranslations, error) {
	if err := s.memes.Update(ctx, meme, updatedBy); err != nil {
		return nil, err
	}

	result, err := s.memes.GetWithTranslations(ctx, meme.ID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithField(ctx, logger.FieldMemeID, meme.ID)

	if err := s.indexer.SyncMeme(ctx, result, nil); err != nil {
		return result, fmt.Errorf("meme %d updated but index sync failed: %w", meme.ID, err)
	}
	if result.Meme.IsPublished() {
		if err := s.media.Mirror(ctx, &result.Meme); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to mirror media")
		}
	}
	return result, nil
}

// UpsertTranslation creates or replaces one translation and re-syncs
// the index, since translations feed the embedding text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - translation: translation keyed by (meme_id, language).
//   - updatedBy: user performing the edit.
// Returns:
//   - error: non-nil if the upsert or the index sync fails.
func (s *ContentService) UpsertTranslation(ctx context.Context, translation *domain.Translation, updatedBy int64) error {
	if err := s.memes.UpsertTranslation(ctx, translation, updatedBy); err != nil {
		return err
	}

	result, err := s.memes.GetWithTranslations(ctx, translation.MemeID)
	if err != nil {
		return err
	}
	ctx = logger.WithField(ctx, logger.FieldMemeID, translation.MemeID)

	if err := s.indexer.SyncMeme(ctx, result, nil); err != nil {
		return fmt.Errorf("translation saved but index sync failed: %w", err)
	}
	return nil
}

// GetBySlug resolves a slug for the public website. When the slug is
// retired, the current slug is returned instead of the meme so the
// caller can issue a permanent redirect.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - slug: requested slug.
// Returns:
//   - *domain.MemeWithTranslations: the meme, when the slug is current.
//   - string: the current slug to redirect to, when the slug is retired.
//   - error: repository.ErrNotFound when the slug never existed.
func (s *ContentService) GetBySlug(ctx context.Context, slug string) (*domain.MemeWithTranslations, string, error) {
	meme, err := s.memes.GetBySlug(ctx, slug)
	if err == nil {
		result, err := s.memes.GetWithTranslations(ctx, meme.ID)
		if err != nil {
			return nil, "", err
		}
		return result, "", nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}

	current, err := s.memes.ResolveSlugRedirect(ctx, slug)
	if err != nil {
		return nil, "", err
	}
	return nil, current, nil
}

// RecordVisit logs a website page view for the popular ranking,
// classifying crawler traffic by user agent so it can be excluded.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - memeID: visited meme.
//   - userAgent: request User-Agent header.
//   - referer: request Referer header.
// Returns:
//   - error: non-nil if the insert fails.
func (s *ContentService) RecordVisit(ctx context.Context, memeID int32, userAgent, referer string) error {
	visit := &domain.WebVisit{
		MemeID:    memeID,
		UserAgent: userAgent,
		Referer:   referer,
		IsBot:     isBotUserAgent(userAgent),
	}
	return s.usage.CreateWebVisit(ctx, visit)
}

func isBotUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range []string{"bot", "crawl", "spider", "slurp", "preview", "curl", "wget"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
