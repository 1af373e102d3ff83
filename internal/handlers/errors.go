package handler

import (
	"errors"
	"log"
	"net/http"

	"recon-service/internal/repository"
	"recon-service/internal/services/ingest"
	"recon-service/internal/services/matching"
	"recon-service/internal/tenant"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// respondError maps service errors onto status codes. Anything unexpected is
// logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	var dup *ingest.DuplicateFileError
	var verr *ingest.ValidationError

	switch {
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "uploadId": dup.UploadID})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case ingest.IsStructural(err), errors.Is(err, matching.ErrUploadIDRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case tenant.IsAccessError(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicateManualTransaction):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		log.Printf("[handler] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
