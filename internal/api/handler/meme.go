package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/memexpert/memexpert/internal/api/middleware"
	"github.com/memexpert/memexpert/internal/domain"
	"github.com/memexpert/memexpert/internal/media"
	"github.com/memexpert/memexpert/internal/repository"
	"github.com/memexpert/memexpert/internal/service"
)

// MemeHandler serves public meme pages by slug.
type MemeHandler struct {
	content *service.ContentService
	media   *media.Service
}

// NewMemeHandler creates a new meme handler.
// Parameters:
//   - content: content service instance.
//   - mediaSvc: media service for public URL generation.
// Returns:
//   - *MemeHandler: initialized handler.
func NewMemeHandler(content *service.ContentService, mediaSvc *media.Service) *MemeHandler {
	return &MemeHandler{
		content: content,
		media:   mediaSvc,
	}
}

// memeResponse is the public representation of a meme.
type memeResponse struct {
	ID           int32                `json:"id"`
	Slug         string               `json:"slug"`
	MediaType    domain.MediaType     `json:"media_type"`
	MimeType     string               `json:"mime_type"`
	Width        int                  `json:"width"`
	Height       int                  `json:"height"`
	Duration     int                  `json:"duration,omitempty"`
	Text         *string              `json:"text,omitempty"`
	Source       *string              `json:"source,omitempty"`
	MediaURL     string               `json:"media_url,omitempty"`
	ThumbURL     string               `json:"thumb_url,omitempty"`
	Translations []domain.Translation `json:"translations"`
}

// GetBySlug handles GET /api/v1/memes/:slug. A retired slug answers
// with a permanent redirect to the current one; every successful fetch
// records a web visit for the popular ranking.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response or redirect).
func (h *MemeHandler) GetBySlug(c *gin.Context) {
	slug := c.Param("slug")

	meme, redirectTo, err := h.content.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meme not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load meme: " + err.Error(),
		})
		return
	}
	if redirectTo != "" {
		c.Redirect(http.StatusMovedPermanently, "/api/v1/memes/"+redirectTo)
		return
	}
	if !meme.Meme.IsPublished() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Meme not found"})
		return
	}

	if err := h.content.RecordVisit(c.Request.Context(), meme.Meme.ID,
		c.Request.UserAgent(), c.Request.Referer()); err != nil {
		middleware.GetLogger(c).WithError(err).Warn("Failed to record visit")
	}

	c.JSON(http.StatusOK, memeResponse{
		ID:           meme.Meme.ID,
		Slug:         meme.Meme.Slug,
		MediaType:    meme.Meme.MediaType,
		MimeType:     meme.Meme.MimeType,
		Width:        meme.Meme.Width,
		Height:       meme.Meme.Height,
		Duration:     meme.Meme.Duration,
		Text:         meme.Meme.Text,
		Source:       meme.Meme.Source,
		MediaURL:     h.media.PublicMediaURL(&meme.Meme),
		ThumbURL:     h.media.PublicThumbURL(&meme.Meme),
		Translations: meme.Translations,
	})
}
