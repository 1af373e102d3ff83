package handler

import (
	"context"
	"net/http"
	"strconv"

	"recon-service/internal/models"
	"recon-service/internal/services/ingest"
	"recon-service/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ManualTransactions interface {
	Create(ctx context.Context, req ingest.ManualRequest, createdBy string) (*models.ManualTransaction, error)
	Upload(ctx context.Context, up ingest.Upload) (*ingest.ManualResult, error)
	ListRuns(ctx context.Context, size int) ([]models.ImportRun, error)
	RunDetail(ctx context.Context, runID uuid.UUID, limit int) (*ingest.ManualRunView, error)
}

type ManualTransactionHandler struct {
	service  ManualTransactions
	maxBytes int64
}

func NewManualTransactionHandler(s ManualTransactions, maxBytes int64) *ManualTransactionHandler {
	return &ManualTransactionHandler{service: s, maxBytes: maxBytes}
}

func (h *ManualTransactionHandler) Create(c *gin.Context) {
	var req ingest.ManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	by, _ := tenant.UserFrom(c.Request.Context())
	m, err := h.service.Create(c.Request.Context(), req, by)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "manual transaction created", "transaction": m})
}

func (h *ManualTransactionHandler) Upload(c *gin.Context) {
	content, filename, ok := readUpload(c, h.maxBytes)
	if !ok {
		return
	}
	res, err := h.service.Upload(c.Request.Context(), ingest.Upload{
		Filename:   filename,
		Content:    content,
		UploadedBy: uploadedBy(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListRuns accepts ?size= (default 50, at most 200).
func (h *ManualTransactionHandler) ListRuns(c *gin.Context) {
	size, ok := sizeParam(c)
	if !ok {
		return
	}
	runs, err := h.service.ListRuns(c.Request.Context(), size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs, "count": len(runs)})
}

func (h *ManualTransactionHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}
	size, ok := sizeParam(c)
	if !ok {
		return
	}
	view, err := h.service.RunDetail(c.Request.Context(), runID, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func sizeParam(c *gin.Context) (int, bool) {
	v := c.Query("size")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be a number"})
		return 0, false
	}
	return n, true
}
