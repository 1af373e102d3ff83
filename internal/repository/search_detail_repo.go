package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recon-service/internal/models"
	"recon-service/internal/tenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ForTenant confines a query on transaction_search_details to one tenant
// triple. A missing toli matches only rows without a toli.
func ForTenant(s tenant.Scope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("board_id = ? AND employer_id = ? AND COALESCE(toli_id, 0) = COALESCE(?, 0)",
			s.BoardID, s.EmployerID, s.ToliID)
	}
}

// SearchDetailRepository persists uploaded search rows.
type SearchDetailRepository struct {
	db *gorm.DB
}

func NewSearchDetailRepository(db *gorm.DB) *SearchDetailRepository {
	return &SearchDetailRepository{db: db}
}

func (r *SearchDetailRepository) WithTx(tx *gorm.DB) *SearchDetailRepository {
	return &SearchDetailRepository{db: tx}
}

// InsertBatch writes all rows of an upload in batched inserts.
func (r *SearchDetailRepository) InsertBatch(ctx context.Context, rows []*models.SearchDetail) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("insert search details: %w", err)
	}
	return nil
}

// RefKey is the form under which two txn refs are the same ref. It mirrors the
// TRIM/UPPER comparison the matcher applies.
func RefKey(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

// FoundRefs returns the keys (see RefKey) of refs already FOUND for the
// tenant, querying in chunks of batchSize.
func (r *SearchDetailRepository) FoundRefs(ctx context.Context, scope tenant.Scope, refs []string, batchSize int) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(refs) == 0 {
		return found, nil
	}
	keys := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		k := RefKey(ref)
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	refs = keys
	if batchSize <= 0 {
		batchSize = 500
	}

	for start := 0; start < len(refs); start += batchSize {
		end := start + batchSize
		if end > len(refs) {
			end = len(refs)
		}
		var hits []string
		err := r.db.WithContext(ctx).Model(&models.SearchDetail{}).
			Distinct().
			Scopes(ForTenant(scope)).
			Where("status = ?", string(models.StatusFound)).
			Where("UPPER(TRIM(txn_ref)) IN ?", refs[start:end]).
			Pluck("UPPER(TRIM(txn_ref))", &hits).Error
		if err != nil {
			return nil, fmt.Errorf("query found txn refs: %w", err)
		}
		for _, h := range hits {
			found[h] = struct{}{}
		}
	}
	return found, nil
}

func (r *SearchDetailRepository) ListByUpload(ctx context.Context, scope tenant.Scope, uploadID uuid.UUID) ([]models.SearchDetail, error) {
	var rows []models.SearchDetail
	err := r.db.WithContext(ctx).
		Scopes(ForTenant(scope)).
		Where("upload_id = ?", uploadID).
		Order("line_no ASC").
		Find(&rows).Error
	return rows, err
}

// StatusCount is one bucket of CountByStatus.
type StatusCount struct {
	Status string
	Count  int64
}

func (r *SearchDetailRepository) CountByStatus(ctx context.Context, scope tenant.Scope, uploadID uuid.UUID) (map[models.SearchDetailStatus]int64, error) {
	var buckets []StatusCount
	err := r.db.WithContext(ctx).Model(&models.SearchDetail{}).
		Scopes(ForTenant(scope)).
		Where("upload_id = ?", uploadID).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&buckets).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.SearchDetailStatus]int64, len(buckets))
	for _, b := range buckets {
		out[models.SearchDetailStatus(b.Status)] = b.Count
	}
	return out, nil
}

// MatchedByUpload projects the FOUND rows of an upload onto MatchedTxnView.
func (r *SearchDetailRepository) MatchedByUpload(ctx context.Context, scope tenant.Scope, uploadID uuid.UUID) ([]models.MatchedTxnView, error) {
	var rows []models.SearchDetail
	err := r.db.WithContext(ctx).
		Scopes(ForTenant(scope)).
		Where("upload_id = ? AND status = ? AND matched_txn_id IS NOT NULL", uploadID, string(models.StatusFound)).
		Order("line_no ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	views := make([]models.MatchedTxnView, 0, len(rows))
	for _, d := range rows {
		v := models.MatchedTxnView{
			DetailID:     d.ID,
			UploadID:     d.UploadID,
			LineNo:       d.LineNo,
			TxnRef:       d.TxnRef,
			TxnAmount:    d.TxnAmount,
			MatchedTxnID: *d.MatchedTxnID,
			TxnType:      d.TxnType,
			CheckedAt:    d.CheckedAt,
		}
		if d.TxnDate != nil {
			v.TxnDate = time.Time(*d.TxnDate).Format("2006-01-02")
		}
		if d.RequestNmbr != nil {
			callerID := CallerRequestNmbr(*d.RequestNmbr, d.UploadID)
			v.RequestNmbr = &callerID
		}
		views = append(views, v)
	}
	return views, nil
}

// ScopedRequestNmbr makes a request number unique per upload.
func ScopedRequestNmbr(requestNmbr string, uploadID uuid.UUID) string {
	return strings.TrimSpace(requestNmbr) + "-" + uploadID.String()
}

// CallerRequestNmbr undoes ScopedRequestNmbr.
func CallerRequestNmbr(stored string, uploadID uuid.UUID) string {
	return strings.TrimSuffix(stored, "-"+uploadID.String())
}
