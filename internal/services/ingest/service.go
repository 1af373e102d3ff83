// Package ingest turns uploaded CSV files into stored rows: search details
// waiting to be matched, and manually keyed bank transactions.
package ingest

import (
	"bytes"
	"context"
	"log"

	"recon-service/internal/config"
	"recon-service/internal/csvrow"
	"recon-service/internal/models"
	"recon-service/internal/repository"
	"recon-service/internal/tenant"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Response statuses.
const (
	StatusLoaded = "LOADED"
	StatusFailed = "FAILED"
)

// Upload is one file handed in by a caller.
type Upload struct {
	Filename   string
	Content    []byte
	UploadedBy string
}

// Response summarises an ingested file. MatchedRows and NotFoundRows are
// filled by the caller once matching has run. Row totals count every data
// line of the file, including in-file duplicates that were never stored.
type Response struct {
	UploadID       uuid.UUID              `json:"uploadId"`
	Status         string                 `json:"status"`
	RunStatus      models.ImportRunStatus `json:"runStatus"`
	Filename       string                 `json:"filename"`
	FileHash       string                 `json:"fileHash"`
	TotalRows      int                    `json:"totalRows"`
	SuccessfulRows int                    `json:"successfulRows"`
	FailedRows     int                    `json:"failedRows"`
	MatchedRows    *int64                 `json:"matchedRows,omitempty"`
	NotFoundRows   *int64                 `json:"notFoundRows,omitempty"`
	Message        string                 `json:"message,omitempty"`
	MatchError     string                 `json:"matchError,omitempty"`
	Errors         []string               `json:"errors"`
}

func (r *Response) Loaded() bool { return r.Status == StatusLoaded }

type Options struct {
	MaxUploadBytes    int64
	DefaultTxnType    string
	RefCheckBatchSize int
}

// Service runs the search-detail upload pipeline.
type Service struct {
	db      *gorm.DB
	tenants tenant.Resolver
	refs    ReferenceChecker
	runs    *repository.ImportRunRepository
	details *repository.SearchDetailRepository
	audit   *repository.AuditRepository
	opts    Options
}

func NewService(db *gorm.DB, tenants tenant.Resolver, refs ReferenceChecker, opts Options) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = config.DefaultMaxUploadBytes
	}
	if opts.DefaultTxnType == "" {
		opts.DefaultTxnType = config.DefaultTxnType
	}
	if opts.RefCheckBatchSize <= 0 {
		opts.RefCheckBatchSize = config.DefaultRefCheckBatch
	}
	return &Service{
		db:      db,
		tenants: tenants,
		refs:    refs,
		runs:    repository.NewImportRunRepository(db),
		details: repository.NewSearchDetailRepository(db),
		audit:   repository.NewAuditRepository(db),
		opts:    opts,
	}
}

// Submit validates and stores one search-detail file. Structural and tenant
// failures return an error before anything is written. A rejected batch is
// not an error: it comes back with Status FAILED and every row failed.
func (s *Service) Submit(ctx context.Context, up Upload) (*Response, error) {
	if len(up.Content) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(up.Content)) > s.opts.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}

	scope, err := s.tenants.ResolveWritable(ctx)
	if err != nil {
		return nil, err
	}

	reader, err := csvrow.NewReader(bytes.NewReader(up.Content), csvrow.SearchDetailSchema(s.opts.DefaultTxnType))
	if err != nil {
		return nil, err
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRecords
	}

	var resp *Response
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		runs := s.runs.WithTx(tx)
		run, created, err := runs.FindOrCreate(ctx, up.Content, up.Filename, models.FileTypeSearchDetail, repository.RunMeta{
			UploadedBy: up.UploadedBy,
			BoardID:    &scope.BoardID,
			EmployerID: &scope.EmployerID,
			ToliID:     scope.ToliID,
		})
		if err != nil {
			return err
		}
		if !created {
			return &DuplicateFileError{UploadID: run.ID, Status: run.Status, InProgress: !run.Finalized()}
		}

		b := newBatch(run.ID, scope, rows)
		b.markDuplicates()
		if err := b.checkReferences(ctx, s.refs); err != nil {
			return err
		}
		if !b.rejected() {
			if err := b.checkCollisions(ctx, s.details.WithTx(tx), s.opts.RefCheckBatchSize); err != nil {
				return err
			}
		}
		if b.rejected() {
			b.applyRejection()
		}

		if err := s.details.WithTx(tx).InsertBatch(ctx, b.persistable()); err != nil {
			return err
		}
		if err := runs.RecordErrors(ctx, b.importErrors(run.ID)); err != nil {
			return err
		}

		total := len(b.entries)
		failed := b.failedCount()
		resp = &Response{
			UploadID:  run.ID,
			Filename:  run.Filename,
			FileHash:  run.FileHash,
			TotalRows: total,
			Errors:    b.messages(),
		}

		if b.rejected() {
			if err := runs.Reject(ctx, run.ID, total, b.reject); err != nil {
				return err
			}
			resp.Status = StatusFailed
			resp.RunStatus = models.ImportRunFailed
			resp.FailedRows = total
			resp.Message = b.reject
			by, _ := tenant.UserFrom(ctx)
			return s.audit.WithTx(tx).Record(ctx, &models.MatchAuditLog{
				UploadID:    run.ID,
				Action:      models.AuditActionReject,
				PerformedBy: by,
				Reason:      b.reject,
			}, map[string]interface{}{"tenant": scope.String(), "total": total})
		}

		msg := ""
		if failed > 0 {
			msg = msgSomeRowsFailed
		}
		if err := runs.Finalize(ctx, run.ID, total, total-failed, failed, msg); err != nil {
			return err
		}
		resp.Status = StatusLoaded
		resp.RunStatus = models.ImportRunImported
		if failed > 0 {
			resp.RunStatus = models.ImportRunPartial
		}
		resp.SuccessfulRows = total - failed
		resp.FailedRows = failed
		resp.Message = msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ingest] upload=%s file=%s %s status=%s total=%d ok=%d failed=%d",
		resp.UploadID, resp.Filename, scope, resp.Status, resp.TotalRows, resp.SuccessfulRows, resp.FailedRows)
	return resp, nil
}

// UploadView is the ledger entry of an upload with what happened to it. The
// run counters cover every line of the file, while StatusCounts covers stored
// rows only, so in-file duplicates show up in the former but not the latter.
type UploadView struct {
	Run          *models.ImportRun                   `json:"run"`
	Errors       []models.ImportError                `json:"errors"`
	StatusCounts map[models.SearchDetailStatus]int64 `json:"statusCounts"`
	Audit        []models.MatchAuditLog              `json:"audit"`
}

// Run returns the ledger entry of an upload. Runs of another tenant read as
// not found.
func (s *Service) Run(ctx context.Context, uploadID uuid.UUID) (*UploadView, error) {
	scope, err := s.tenants.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	run, err := s.runs.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if !ownedBy(run, scope) {
		return nil, gorm.ErrRecordNotFound
	}

	view := &UploadView{Run: run}
	if view.Errors, err = s.runs.Errors(ctx, uploadID); err != nil {
		return nil, err
	}
	if view.StatusCounts, err = s.details.CountByStatus(ctx, scope, uploadID); err != nil {
		return nil, err
	}
	if view.Audit, err = s.audit.ListByUpload(ctx, uploadID); err != nil {
		return nil, err
	}
	return view, nil
}

// Details lists the stored rows of an upload within the caller's tenant.
func (s *Service) Details(ctx context.Context, uploadID uuid.UUID) ([]models.SearchDetail, error) {
	scope, err := s.tenants.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return s.details.ListByUpload(ctx, scope, uploadID)
}

// Matched lists the FOUND rows of an upload with their matched transaction.
func (s *Service) Matched(ctx context.Context, uploadID uuid.UUID) ([]models.MatchedTxnView, error) {
	scope, err := s.tenants.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return s.details.MatchedByUpload(ctx, scope, uploadID)
}

func ownedBy(run *models.ImportRun, scope tenant.Scope) bool {
	if run.BoardID == nil || run.EmployerID == nil {
		return true
	}
	if *run.BoardID != scope.BoardID || *run.EmployerID != scope.EmployerID {
		return false
	}
	if run.ToliID == nil || scope.ToliID == nil {
		return run.ToliID == nil && scope.ToliID == nil
	}
	return *run.ToliID == *scope.ToliID
}
