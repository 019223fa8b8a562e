package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/getcomics-go/internal/app"
	"github.com/yourusername/getcomics-go/internal/domain"
)

const defaultListLimit = 100

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	queueMgr    *app.QueueManager
	downloadMgr *app.DownloadManager
	baseDir     string
	accelerated bool
	logger      *zap.Logger
}

// NewDownloadHandler creates a new download handler.
// baseDir and accelerated are used when a request leaves them unset.
func NewDownloadHandler(queueMgr *app.QueueManager, downloadMgr *app.DownloadManager, baseDir string, accelerated bool, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		queueMgr:    queueMgr,
		downloadMgr: downloadMgr,
		baseDir:     baseDir,
		accelerated: accelerated,
		logger:      logger,
	}
}

// DownloadItem is one selected candidate in its single-string form
type DownloadItem struct {
	Key   string `json:"key" binding:"required"`
	Title string `json:"title" binding:"required"`
}

// AddDownloadsRequest represents a batch download request
type AddDownloadsRequest struct {
	Items          []DownloadItem `json:"items" binding:"required,min=1,dive"`
	DestinationDir string         `json:"destination_dir,omitempty"`
	Accelerated    *bool          `json:"accelerated,omitempty"`
}

// AddDownloads handles POST /api/v1/downloads
func (h *DownloadHandler) AddDownloads(c *gin.Context) {
	var req AddDownloadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candidates := make([]domain.DownloadCandidate, len(req.Items))
	for i, item := range req.Items {
		candidates[i] = domain.CandidateFromKey(item.Key, item.Title)
	}

	dir := req.DestinationDir
	if dir == "" {
		dir = h.baseDir
	}
	accelerated := h.accelerated
	if req.Accelerated != nil {
		accelerated = *req.Accelerated
	}

	batch, err := h.queueMgr.Submit(candidates, dir, accelerated)
	if err != nil {
		if errors.Is(err, app.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to submit batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, batch)
}

// GetBatch handles GET /api/v1/batches/:id
func (h *DownloadHandler) GetBatch(c *gin.Context) {
	batch := h.queueMgr.GetBatch(c.Param("id"))
	if batch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	c.JSON(http.StatusOK, batch)
}

// ListBatches handles GET /api/v1/batches
func (h *DownloadHandler) ListBatches(c *gin.Context) {
	c.JSON(http.StatusOK, h.queueMgr.ListBatches())
}

// ListDownloads handles GET /api/v1/downloads
func (h *DownloadHandler) ListDownloads(c *gin.Context) {
	filters := make(map[string]interface{})

	if state := c.Query("state"); state != "" {
		filters["state"] = state
	}
	if transport := c.Query("transport"); transport != "" {
		filters["transport"] = transport
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	transfers, err := h.downloadMgr.ListTransfers(filters, limit)
	if err != nil {
		h.logger.Error("Failed to list transfers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, transfers)
}

// GetStats handles GET /api/v1/downloads/stats
func (h *DownloadHandler) GetStats(c *gin.Context) {
	stats, err := h.downloadMgr.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RecoverRequest names the directory to scan for partial transfers
type RecoverRequest struct {
	DestinationDir string `json:"destination_dir,omitempty"`
	Accelerated    *bool  `json:"accelerated,omitempty"`
}

// Recover handles POST /api/v1/recover
func (h *DownloadHandler) Recover(c *gin.Context) {
	var req RecoverRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	dir := req.DestinationDir
	if dir == "" {
		dir = h.baseDir
	}

	accelerated := h.accelerated
	if req.Accelerated != nil {
		accelerated = *req.Accelerated
	}

	outcomes, err := h.downloadMgr.Recover(c.Request.Context(), dir, accelerated, domain.NopProgress)
	if err != nil {
		if errors.Is(err, domain.ErrHelperUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Recovery failed", zap.String("dir", dir), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"destination_dir": dir, "outcomes": outcomes})
}
