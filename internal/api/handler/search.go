package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/memexpert/memexpert/internal/service"
)

// SearchHandler handles search-related endpoints.
type SearchHandler struct {
	searchService *service.SearchService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - searchService: search service instance.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(searchService *service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search handles GET /api/v1/search. An empty or missing q returns the
// recent/popular fallback page for the user.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Search(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'user_id' must be an integer",
		})
		return
	}

	result, err := h.searchService.Search(c.Request.Context(), userID, c.Query("q"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Search failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// chosenRequest reports which result the user picked from a search.
type chosenRequest struct {
	SearchID int64  `json:"search_id" binding:"required"`
	MemeID   int32  `json:"meme_id" binding:"required"`
	Source   string `json:"source" binding:"required"`
}

// Chosen handles POST /api/v1/search/chosen.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Chosen(c *gin.Context) {
	var req chosenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if err := h.searchService.SaveChosen(c.Request.Context(), req.SearchID, req.MemeID, req.Source); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save chosen result: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Similar handles GET /api/v1/similar/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Similar(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Meme ID must be an integer",
		})
		return
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	results, err := h.searchService.Similar(c.Request.Context(), int32(id), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Similarity search failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
