package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/app"
	"github.com/yourusername/getcomics-go/internal/domain"
)

// Searcher runs a discovery crawl and classifies the results
type Searcher interface {
	Search(ctx context.Context, req domain.ResolvedRequest) (*app.SearchResult, error)
}

// SearchHandler handles search requests
type SearchHandler struct {
	searcher     Searcher
	defaultQuota int
	logger       *zap.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searcher Searcher, defaultQuota int, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		searcher:     searcher,
		defaultQuota: defaultQuota,
		logger:       logger,
	}
}

// SearchRequest represents a search request
type SearchRequest struct {
	Query       string `json:"query,omitempty"`
	Tag         string `json:"tag,omitempty"`
	ResultQuota *int   `json:"result_quota,omitempty"`
	DateFloor   string `json:"date_floor,omitempty"` // YYYY-MM-DD
	MinIssue    *int   `json:"min_issue,omitempty"`
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(c *gin.Context) {
	var body SearchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := domain.ResolvedRequest{
		Query:       body.Query,
		Tag:         body.Tag,
		ResultQuota: h.defaultQuota,
		MinIssue:    body.MinIssue,
	}
	if body.ResultQuota != nil {
		req.ResultQuota = *body.ResultQuota
	}
	if body.DateFloor != "" {
		floor, err := domain.ParseDate(body.DateFloor)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.DateFloor = &floor
	}

	result, err := h.searcher.Search(c.Request.Context(), req)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
