package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"recon-service/internal/config"
	handler "recon-service/internal/handlers"
	"recon-service/internal/repository"
	"recon-service/internal/services/ingest"
	"recon-service/internal/services/matching"
	"recon-service/internal/tenant"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config) error {
	tenants := tenant.NewGrantResolver(repository.NewTenantRepository(db))
	receipts := repository.NewReceiptRepository(db, cfg.ReceiptTable)

	uploads := ingest.NewService(db, tenants, receipts, ingest.Options{
		MaxUploadBytes:    cfg.MaxUploadBytes,
		DefaultTxnType:    cfg.DefaultTxnType,
		RefCheckBatchSize: cfg.RefCheckBatchSize,
	})
	engine, err := matching.NewEngine(db, tenants, repository.NewAuditRepository(db), matching.Options{
		CandidateSource: cfg.CandidateSource,
	})
	if err != nil {
		return err
	}
	manual := ingest.NewManualService(db, cfg.ManualMaxUploadBytes)

	reconHandler := handler.NewReconciliationHandler(uploads, engine, cfg.MaxUploadBytes)
	manualHandler := handler.NewManualTransactionHandler(manual, cfg.ManualMaxUploadBytes)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	recon := api.Group("/v1/reconciliation", handler.CallerIdentity())

	// Search-detail uploads
	up := recon.Group("/transaction-uploads")
	up.POST("", reconHandler.Upload)
	up.GET("/:uploadId", reconHandler.GetUpload)
	up.GET("/:uploadId/details", reconHandler.ListDetails)
	up.GET("/:uploadId/details/:detailId/candidates", reconHandler.Candidates)
	up.GET("/:uploadId/matched", reconHandler.ListMatched)
	up.POST("/:uploadId/match", reconHandler.Match)
	up.POST("/:uploadId/rematch", reconHandler.Rematch)

	// Manually keyed bank transactions
	manualTx := recon.Group("/manual-transactions")
	{
		manualTx.POST("", manualHandler.Create)
		manualTx.POST("/upload", manualHandler.Upload)
		manualTx.GET("/runs", manualHandler.ListRuns)
		manualTx.GET("/runs/:runId", manualHandler.GetRun)
	}
	return nil
}
