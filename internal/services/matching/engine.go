// Package matching resolves PENDING search rows of an upload against the bank
// transaction view in two set-based statements.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"recon-service/internal/models"
	"recon-service/internal/repository"
	"recon-service/internal/tenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// MatchPredicate decides whether candidate b satisfies search row d.
	MatchPredicate = `b.amount = d.txn_amount
       AND b.txn_date = d.txn_date
       AND COALESCE(TRIM(UPPER(b.txn_ref)), '') = COALESCE(TRIM(UPPER(d.txn_ref)), '')`

	// CandidateOrder picks one winner per row: latest txn date, then latest
	// insert, then highest source id.
	CandidateOrder = "b.txn_date DESC, b.created_at DESC, b.source_txn_id DESC"

	pendingScope = `d.status = @pending
       AND d.upload_id = @upload
       AND d.board_id = @board
       AND d.employer_id = @employer
       AND COALESCE(d.toli_id, 0) = COALESCE(@toli, 0)`

	foundTemplate = `WITH candidates AS (
    SELECT d.id AS detail_id,
           b.source_txn_id AS source_txn_id,
           b.type AS cand_type,
           b.description AS cand_description,
           ROW_NUMBER() OVER (PARTITION BY d.id ORDER BY %[4]s) AS rn
      FROM %[1]s d
      JOIN %[2]s b
        ON %[3]s
     WHERE %[5]s
)
UPDATE %[1]s
   SET status = @found,
       matched_txn_id = c.source_txn_id,
       txn_type = CASE
                    WHEN c.cand_type IS NULL OR UPPER(TRIM(c.cand_type)) = 'NA' THEN %[1]s.txn_type
                    ELSE c.cand_type
                  END,
       description = COALESCE(c.cand_description, %[1]s.description),
       checked_at = @now,
       error = NULL
  FROM candidates c
 WHERE %[1]s.id = c.detail_id
   AND c.rn = 1
   AND %[1]s.status = @pending`

	notFoundTemplate = `UPDATE %[1]s
   SET status = @notfound,
       checked_at = @now,
       error = NULL
 WHERE id IN (SELECT d.id FROM %[1]s d WHERE %[2]s)`

	resetTemplate = `UPDATE %[1]s
   SET status = @pending,
       matched_txn_id = NULL,
       checked_at = NULL,
       error = NULL
 WHERE upload_id = @upload
   AND board_id = @board
   AND employer_id = @employer
   AND COALESCE(toli_id, 0) = COALESCE(@toli, 0)
   AND status = @found`
)

var (
	ErrUploadIDRequired = errors.New("uploadId is required")
	ErrInvalidSource    = errors.New("invalid candidate source name")

	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// Result reports how many rows one pass moved out of PENDING.
type Result struct {
	UploadID       uuid.UUID `json:"uploadId"`
	Matched        int64     `json:"matched"`
	MarkedNotFound int64     `json:"markedNotFound"`
	Reset          int64     `json:"reset,omitempty"`
}

type Options struct {
	// CandidateSource names the table or view holding bank transactions.
	CandidateSource string
	Now             func() time.Time
}

type Engine struct {
	db         *gorm.DB
	tenants    tenant.Resolver
	audit      *repository.AuditRepository
	candidates *repository.BankTransactionRepository
	found      string
	notFound   string
	reset      string
	now        func() time.Time
}

func NewEngine(db *gorm.DB, tenants tenant.Resolver, audit *repository.AuditRepository, opts Options) (*Engine, error) {
	source := opts.CandidateSource
	if source == "" {
		source = models.BankTransaction{}.TableName()
	}
	if !identifier.MatchString(source) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	details := models.SearchDetail{}.TableName()
	return &Engine{
		db:         db,
		tenants:    tenants,
		audit:      audit,
		candidates: repository.NewBankTransactionRepository(db, source),
		found:      fmt.Sprintf(foundTemplate, details, source, MatchPredicate, CandidateOrder, pendingScope),
		notFound:   fmt.Sprintf(notFoundTemplate, details, pendingScope),
		reset:      fmt.Sprintf(resetTemplate, details),
		now:        now,
	}, nil
}

// MatchUpload resolves every PENDING row of the upload within the caller's
// tenant. Rows outside the tenant and rows in any other state are untouched.
// Calling it again on a settled upload changes nothing.
func (e *Engine) MatchUpload(ctx context.Context, uploadID uuid.UUID) (*Result, error) {
	if uploadID == uuid.Nil {
		return nil, ErrUploadIDRequired
	}
	scope, err := e.tenants.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = e.match(ctx, tx, scope, uploadID)
		if err != nil {
			return err
		}
		if res.Matched == 0 && res.MarkedNotFound == 0 {
			return nil
		}
		return e.record(ctx, tx, models.AuditActionMatch, scope, res)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[matching] upload=%s %s matched=%d notfound=%d", uploadID, scope, res.Matched, res.MarkedNotFound)
	return res, nil
}

// Rematch sends FOUND rows of the upload back to PENDING and matches them
// again, so a newer candidate can take over. NOTFOUND, FAILED and CLAIMED rows
// keep their state. The caller needs a writable grant.
func (e *Engine) Rematch(ctx context.Context, uploadID uuid.UUID) (*Result, error) {
	if uploadID == uuid.Nil {
		return nil, ErrUploadIDRequired
	}
	scope, err := e.tenants.ResolveWritable(ctx)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reset := tx.Exec(e.reset, e.args(scope, uploadID))
		if reset.Error != nil {
			return fmt.Errorf("reset upload %s: %w", uploadID, reset.Error)
		}
		var err error
		res, err = e.match(ctx, tx, scope, uploadID)
		if err != nil {
			return err
		}
		res.Reset = reset.RowsAffected
		return e.record(ctx, tx, models.AuditActionRematch, scope, res)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[matching] rematch upload=%s %s reset=%d matched=%d notfound=%d",
		uploadID, scope, res.Reset, res.Matched, res.MarkedNotFound)
	return res, nil
}

// Candidates lists the bank transactions a stored row would match, best
// first, without changing anything.
func (e *Engine) Candidates(ctx context.Context, uploadID, detailID uuid.UUID) ([]models.BankTransaction, error) {
	scope, err := e.tenants.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	var d models.SearchDetail
	err = e.db.WithContext(ctx).
		Scopes(repository.ForTenant(scope)).
		Where("id = ? AND upload_id = ?", detailID, uploadID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	if d.TxnDate == nil {
		return []models.BankTransaction{}, nil
	}
	return e.candidates.FindCandidates(ctx, d.TxnRef, time.Time(*d.TxnDate), d.TxnAmount)
}

func (e *Engine) match(ctx context.Context, tx *gorm.DB, scope tenant.Scope, uploadID uuid.UUID) (*Result, error) {
	args := e.args(scope, uploadID)

	found := tx.WithContext(ctx).Exec(e.found, args)
	if found.Error != nil {
		return nil, fmt.Errorf("mark found for upload %s: %w", uploadID, found.Error)
	}
	notFound := tx.WithContext(ctx).Exec(e.notFound, args)
	if notFound.Error != nil {
		return nil, fmt.Errorf("mark not found for upload %s: %w", uploadID, notFound.Error)
	}
	return &Result{UploadID: uploadID, Matched: found.RowsAffected, MarkedNotFound: notFound.RowsAffected}, nil
}

func (e *Engine) args(scope tenant.Scope, uploadID uuid.UUID) map[string]interface{} {
	var toli interface{}
	if scope.ToliID != nil {
		toli = *scope.ToliID
	}
	return map[string]interface{}{
		"pending":  string(models.StatusPending),
		"found":    string(models.StatusFound),
		"notfound": string(models.StatusNotFound),
		"upload":   uploadID,
		"board":    scope.BoardID,
		"employer": scope.EmployerID,
		"toli":     toli,
		"now":      e.now(),
	}
}

func (e *Engine) record(ctx context.Context, tx *gorm.DB, action string, scope tenant.Scope, res *Result) error {
	if e.audit == nil {
		return nil
	}
	by, _ := tenant.UserFrom(ctx)
	entry := &models.MatchAuditLog{
		UploadID:    res.UploadID,
		Action:      action,
		PerformedBy: by,
		Matched:     int(res.Matched),
		NotFound:    int(res.MarkedNotFound),
	}
	return e.audit.WithTx(tx).Record(ctx, entry, map[string]interface{}{
		"tenant": scope.String(),
		"reset":  res.Reset,
	})
}
