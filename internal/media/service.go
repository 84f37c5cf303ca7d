package media

import (
	"context"
	"fmt"

	"github.com/memexpert/memexpert/internal/domain"
	"github.com/memexpert/memexpert/internal/logger"
)

// Service glues the file host fetcher and the S3 mirror together for
// the rest of the system: thumbnail bytes for embeddings, mirroring on
// publish, and public URLs for the website.
type Service struct {
	fetcher *Fetcher
	mirror  *S3Storage // optional
	logger  *logger.Logger
}

// NewService creates a new media service. The mirror may be nil when no
// object storage is configured; mirroring then becomes a no-op and
// public URLs are empty.
func NewService(fetcher *Fetcher, mirror *S3Storage, log *logger.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		mirror:  mirror,
		logger:  log,
	}
}

// ThumbnailBytes returns the meme's thumbnail as a downscaled JPEG
// rendition, fetching and caching the source bytes on first use. These
// bytes feed the image embedding and the mirrored thumbnail object, so
// both always see the same bounded, uniformly-encoded image whatever
// format the file host served.
func (s *Service) ThumbnailBytes(ctx context.Context, meme *domain.Meme) ([]byte, error) {
	raw, err := s.fetcher.FetchFile(ctx, meme.ThumbTgID)
	if err != nil {
		return nil, err
	}
	thumb, err := BuildThumbnail(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to build thumbnail %s: %w", meme.ThumbTgID, err)
	}
	return thumb.Data, nil
}

// MediaBytes returns the meme's primary media bytes.
func (s *Service) MediaBytes(ctx context.Context, meme *domain.Meme) ([]byte, error) {
	return s.fetcher.FetchFile(ctx, meme.TgID)
}

func mediaKey(meme *domain.Meme) string {
	return fmt.Sprintf("media/%s", meme.TgUniqueID)
}

func thumbKey(meme *domain.Meme) string {
	return fmt.Sprintf("thumb/%s.jpg", meme.TgUniqueID)
}

// Mirror copies the meme's media and thumbnail into object storage.
// Objects are keyed by the file's unique ID, so re-mirroring the same
// content is cheap and idempotent.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meme: meme whose files are mirrored.
// Returns:
//   - error: non-nil if fetching or uploading fails. No-op without a
//     configured mirror.
func (s *Service) Mirror(ctx context.Context, meme *domain.Meme) error {
	if s.mirror == nil {
		return nil
	}

	exists, err := s.mirror.Exists(ctx, mediaKey(meme))
	if err != nil {
		return err
	}
	if !exists {
		data, err := s.MediaBytes(ctx, meme)
		if err != nil {
			return fmt.Errorf("failed to fetch media for mirroring: %w", err)
		}
		if err := s.mirror.Upload(ctx, mediaKey(meme), data, meme.MimeType); err != nil {
			return err
		}
	}

	// ThumbnailBytes re-encodes as JPEG, matching the .jpg object key.
	thumb, err := s.ThumbnailBytes(ctx, meme)
	if err != nil {
		return fmt.Errorf("failed to fetch thumbnail for mirroring: %w", err)
	}
	if err := s.mirror.Upload(ctx, thumbKey(meme), thumb, "image/jpeg"); err != nil {
		return err
	}

	s.logger.WithField(logger.FieldMemeID, meme.ID).Debug("Mirrored media to object storage")
	return nil
}

// PublicMediaURL returns the website-facing URL of the meme's media, or
// "" when no mirror is configured.
func (s *Service) PublicMediaURL(meme *domain.Meme) string {
	if s.mirror == nil {
		return ""
	}
	return s.mirror.PublicURL(mediaKey(meme))
}

// PublicThumbURL returns the website-facing URL of the meme's
// thumbnail, or "" when no mirror is configured.
func (s *Service) PublicThumbURL(meme *domain.Meme) string {
	if s.mirror == nil {
		return ""
	}
	return s.mirror.PublicURL(thumbKey(meme))
}
