package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"recon-service/internal/models"
	"recon-service/internal/services/ingest"
	"recon-service/internal/services/matching"
	"recon-service/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Uploads is the search-detail side the handler drives.
type Uploads interface {
	Submit(ctx context.Context, up ingest.Upload) (*ingest.Response, error)
	Run(ctx context.Context, uploadID uuid.UUID) (*ingest.UploadView, error)
	Details(ctx context.Context, uploadID uuid.UUID) ([]models.SearchDetail, error)
	Matched(ctx context.Context, uploadID uuid.UUID) ([]models.MatchedTxnView, error)
}

// Matcher resolves pending rows of an upload.
type Matcher interface {
	MatchUpload(ctx context.Context, uploadID uuid.UUID) (*matching.Result, error)
	Rematch(ctx context.Context, uploadID uuid.UUID) (*matching.Result, error)
	Candidates(ctx context.Context, uploadID, detailID uuid.UUID) ([]models.BankTransaction, error)
}

type ReconciliationHandler struct {
	uploads  Uploads
	matcher  Matcher
	maxBytes int64
}

func NewReconciliationHandler(uploads Uploads, matcher Matcher, maxBytes int64) *ReconciliationHandler {
	return &ReconciliationHandler{uploads: uploads, matcher: matcher, maxBytes: maxBytes}
}

// Upload ingests a search-detail CSV and, when it loaded, matches it right away.
func (h *ReconciliationHandler) Upload(c *gin.Context) {
	content, filename, ok := readUpload(c, h.maxBytes)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	resp, err := h.uploads.Submit(ctx, ingest.Upload{
		Filename:   filename,
		Content:    content,
		UploadedBy: uploadedBy(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if !resp.Loaded() {
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	res, err := h.matcher.MatchUpload(ctx, resp.UploadID)
	if err != nil {
		// the upload is committed; matching can be retried on its own
		log.Printf("[handler] match after upload %s failed: %v", resp.UploadID, err)
		resp.MatchError = "matching failed, retry via the match endpoint"
	} else {
		resp.MatchedRows = &res.Matched
		resp.NotFoundRows = &res.MarkedNotFound
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReconciliationHandler) Match(c *gin.Context) {
	uploadID, ok := uploadParam(c)
	if !ok {
		return
	}
	res, err := h.matcher.MatchUpload(c.Request.Context(), uploadID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReconciliationHandler) Rematch(c *gin.Context) {
	uploadID, ok := uploadParam(c)
	if !ok {
		return
	}
	res, err := h.matcher.Rematch(c.Request.Context(), uploadID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetUpload returns the import run with its row errors, status counts and
// audit trail.
func (h *ReconciliationHandler) GetUpload(c *gin.Context) {
	uploadID, ok := uploadParam(c)
	if !ok {
		return
	}
	view, err := h.uploads.Run(c.Request.Context(), uploadID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ReconciliationHandler) ListDetails(c *gin.Context) {
	uploadID, ok := uploadParam(c)
	if !ok {
		return
	}
	rows, err := h.uploads.Details(c.Request.Context(), uploadID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "count": len(rows)})
}

func (h *ReconciliationHandler) ListMatched(c *gin.Context) {
	uploadID, ok := uploadParam(c)
	if !ok {
		return
	}
	views, err := h.uploads.Matched(c.Request.Context(), uploadID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": views, "count": len(views)})
}

func (h *ReconciliationHandler) Candidates(c *gin.Context) {
	uploadID, ok := uploadParam(c)
	if !ok {
		return
	}
	detailID, err := uuid.Parse(c.Param("detailId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid detail ID"})
		return
	}
	txs, err := h.matcher.Candidates(c.Request.Context(), uploadID, detailID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": txs, "count": len(txs)})
}

func uploadParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("uploadId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload ID"})
		return uuid.Nil, false
	}
	return id, true
}

// multipartOverhead is the slack allowed on top of the file cap for
// boundaries and the other form fields.
const multipartOverhead = 1 << 20

// readUpload pulls the multipart "file" into memory. The request body is
// capped first, so an oversized upload is cut off while it streams in.
func readUpload(c *gin.Context, maxBytes int64) ([]byte, string, bool) {
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(c, ingest.ErrFileTooLarge)
			return nil, "", false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": ingest.ErrEmptyFile.Error()})
		return nil, "", false
	}
	defer file.Close()

	log.Printf("[handler] received file %s size=%d", header.Filename, header.Size)
	if maxBytes > 0 && header.Size > maxBytes {
		respondError(c, ingest.ErrFileTooLarge)
		return nil, "", false
	}

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return nil, "", false
	}
	return content, header.Filename, true
}

func uploadedBy(c *gin.Context) string {
	if v := c.PostForm("uploadedBy"); v != "" {
		return v
	}
	id, _ := tenant.UserFrom(c.Request.Context())
	return id
}
