package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"recon-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRunFinalized = errors.New("import run already finalized")

// ContentHash is the hex SHA-256 of raw file bytes, the dedup key of a run.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// RunMeta carries the optional attributes stored on a new run.
type RunMeta struct {
	UploadedBy string
	BoardID    *int64
	EmployerID *int64
	ToliID     *int64
}

// ImportRunRepository is the ledger of uploaded files.
type ImportRunRepository struct {
	db *gorm.DB
}

func NewImportRunRepository(db *gorm.DB) *ImportRunRepository {
	return &ImportRunRepository{db: db}
}

// WithTx returns a copy bound to tx.
func (r *ImportRunRepository) WithTx(tx *gorm.DB) *ImportRunRepository {
	return &ImportRunRepository{db: tx}
}

// FindOrCreate returns the run for the content hash, creating a NEW one when
// none exists. created is false when the bytes were seen before; the existing
// run is returned untouched.
func (r *ImportRunRepository) FindOrCreate(ctx context.Context, content []byte, filename, fileType string, meta RunMeta) (*models.ImportRun, bool, error) {
	hash := ContentHash(content)

	existing, err := r.findByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now()
	run := &models.ImportRun{
		ID:            uuid.New(),
		Filename:      filename,
		FileHash:      hash,
		FileSizeBytes: int64(len(content)),
		FileType:      fileType,
		BoardID:       meta.BoardID,
		EmployerID:    meta.EmployerID,
		ToliID:        meta.ToliID,
		Status:        models.ImportRunNew,
		ReceivedAt:    now,
		CreatedAt:     now,
	}
	if meta.UploadedBy != "" {
		run.UploadedBy = &meta.UploadedBy
	}

	// A concurrent upload of the same bytes loses on the unique hash index.
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "file_hash"}}, DoNothing: true}).
		Create(run)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create import run: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return run, true, nil
	}

	existing, err = r.findByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("import run for hash %s vanished after conflict", hash)
	}
	return existing, false, nil
}

func (r *ImportRunRepository) findByHash(ctx context.Context, hash string) (*models.ImportRun, error) {
	var run models.ImportRun
	err := r.db.WithContext(ctx).Where("file_hash = ?", hash).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find import run by hash: %w", err)
	}
	return &run, nil
}

// Finalize sets the terminal counters: IMPORTED when nothing failed,
// PARTIAL otherwise. A run is finalized at most once.
func (r *ImportRunRepository) Finalize(ctx context.Context, runID uuid.UUID, total, succeeded, failed int, message string) error {
	status := models.ImportRunImported
	if failed > 0 {
		status = models.ImportRunPartial
	}
	return r.close(ctx, runID, status, total, succeeded, failed, message)
}

// Reject closes the run as FAILED with every row counted as failed.
func (r *ImportRunRepository) Reject(ctx context.Context, runID uuid.UUID, total int, message string) error {
	return r.close(ctx, runID, models.ImportRunFailed, total, 0, total, message)
}

func (r *ImportRunRepository) close(ctx context.Context, runID uuid.UUID, status models.ImportRunStatus, total, succeeded, failed int, message string) error {
	var errMsg interface{}
	if message != "" {
		errMsg = message
	}
	res := r.db.WithContext(ctx).Model(&models.ImportRun{}).
		Where("id = ? AND status = ?", runID, string(models.ImportRunNew)).
		Updates(map[string]interface{}{
			"status":            string(status),
			"total_records":     total,
			"processed_records": succeeded,
			"failed_records":    failed,
			"error_message":     errMsg,
			"completed_at":      time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("finalize import run %s: %w", runID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunFinalized, runID)
	}
	return nil
}

// RecordErrors stores row-scoped errors of a run.
func (r *ImportRunRepository) RecordErrors(ctx context.Context, errs []models.ImportError) error {
	if len(errs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(errs, 500).Error; err != nil {
		return fmt.Errorf("record import errors: %w", err)
	}
	return nil
}

func (r *ImportRunRepository) Get(ctx context.Context, runID uuid.UUID) (*models.ImportRun, error) {
	var run models.ImportRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListByType returns the newest runs of a file type. limit is clamped to 1..200
// and defaults to 50.
func (r *ImportRunRepository) ListByType(ctx context.Context, fileType string, limit int) ([]models.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	var runs []models.ImportRun
	err := r.db.WithContext(ctx).
		Where("file_type = ?", fileType).
		Order("received_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (r *ImportRunRepository) Errors(ctx context.Context, runID uuid.UUID) ([]models.ImportError, error) {
	var errs []models.ImportError
	err := r.db.WithContext(ctx).
		Where("import_run_id = ?", runID).
		Order("line_no ASC").
		Find(&errs).Error
	return errs, err
}
