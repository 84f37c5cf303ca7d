package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/memexpert/memexpert/internal/domain"
	"github.com/memexpert/memexpert/internal/service"
)

// AdminHandler exposes index maintenance and content mutations to
// privileged callers (the bot backend and operators).
type AdminHandler struct {
	indexer *service.Indexer
	content *service.ContentService
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - indexer: index maintainer instance.
//   - content: content service instance.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(indexer *service.Indexer, content *service.ContentService) *AdminHandler {
	return &AdminHandler{
		indexer: indexer,
		content: content,
	}
}

// Reindex handles POST /api/v1/admin/reindex. Runs synchronously; the
// caller is a privileged operator who wants the stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) Reindex(c *gin.Context) {
	stats, err := h.indexer.ReindexAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Reindex failed: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Heal handles POST /api/v1/admin/heal.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) Heal(c *gin.Context) {
	stats, err := h.indexer.Heal(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Heal failed: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// createMemeRequest mirrors service.CreateMemeInput for JSON binding.
type createMemeRequest struct {
	Slug          string  `json:"slug"`
	PublishStatus string  `json:"publish_status"`
	MediaType     string  `json:"media_type" binding:"required"`
	MimeType      string  `json:"mime_type" binding:"required"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Duration      int     `json:"duration"`
	Text          *string `json:"text"`
	Source        *string `json:"source"`

	TgID          string `json:"tg_id" binding:"required"`
	TgUniqueID    string `json:"tg_unique_id" binding:"required"`
	ContentLength int    `json:"content_length"`

	ThumbTgID       string `json:"thumb_tg_id" binding:"required"`
	ThumbMimeType   string `json:"thumb_mime_type"`
	ThumbWidth      int    `json:"thumb_width"`
	ThumbHeight     int    `json:"thumb_height"`
	ThumbContentLen int    `json:"thumb_content_length"`

	ControlMsgID int   `json:"control_message_id"`
	CreatedBy    int64 `json:"created_by" binding:"required"`

	Language    string `json:"language"`
	Title       string `json:"title"`
	Caption     string `json:"caption"`
	Description string `json:"description"`

	AllowDuplicate bool `json:"allow_duplicate"`
}

// CreateMeme handles POST /api/v1/admin/memes.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) CreateMeme(c *gin.Context) {
	var req createMemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	status := domain.PublishStatus(req.PublishStatus)
	if status == "" {
		status = domain.PublishStatusDraft
	}

	input := &service.CreateMemeInput{
		Slug:            req.Slug,
		PublishStatus:   status,
		MediaType:       domain.MediaType(req.MediaType),
		MimeType:        req.MimeType,
		Width:           req.Width,
		Height:          req.Height,
		Duration:        req.Duration,
		Text:            req.Text,
		Source:          req.Source,
		TgID:            req.TgID,
		TgUniqueID:      req.TgUniqueID,
		ContentLength:   req.ContentLength,
		ThumbTgID:       req.ThumbTgID,
		ThumbMimeType:   req.ThumbMimeType,
		ThumbWidth:      req.ThumbWidth,
		ThumbHeight:     req.ThumbHeight,
		ThumbContentLen: req.ThumbContentLen,
		ControlMsgID:    req.ControlMsgID,
		CreatedBy:       req.CreatedBy,
		Language:        req.Language,
		Title:           req.Title,
		Caption:         req.Caption,
		Description:     req.Description,
		AllowDuplicate:  req.AllowDuplicate,
	}

	meme, err := h.content.CreateMeme(c.Request.Context(), input)
	if err != nil {
		var nearDup *service.NearDuplicateError
		switch {
		case errors.Is(err, service.ErrDuplicateMedia):
			c.JSON(http.StatusConflict, gin.H{"error": "Media already exists"})
		case errors.As(err, &nearDup):
			c.JSON(http.StatusConflict, gin.H{
				"error":     "Near-duplicate detected",
				"duplicate": nearDup.Existing,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create meme: " + err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, meme)
}

// updateTranslationRequest carries one translation upsert.
type updateTranslationRequest struct {
	MemeID      int32  `json:"meme_id" binding:"required"`
	Language    string `json:"language" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Caption     string `json:"caption"`
	Description string `json:"description"`
	UpdatedBy   int64  `json:"updated_by" binding:"required"`
}

// UpsertTranslation handles PUT /api/v1/admin/translations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) UpsertTranslation(c *gin.Context) {
	var req updateTranslationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	translation := &domain.Translation{
		MemeID:      req.MemeID,
		Language:    req.Language,
		Title:       req.Title,
		Caption:     req.Caption,
		Description: req.Description,
	}
	if err := h.content.UpsertTranslation(c.Request.Context(), translation, req.UpdatedBy); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save translation: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, translation)
}
