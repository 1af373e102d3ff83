package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"recon-service/internal/config"
	"recon-service/internal/csvrow"
	"recon-service/internal/models"
	"recon-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ManualTxnTypes are the transfer types a manual transaction may carry. Each
// of them needs a txn_ref.
var ManualTxnTypes = []string{"NEFT", "RTGS", "IMPS"}

// ManualRequest is a single manually keyed bank transaction.
type ManualRequest struct {
	TxnRef      string          `json:"txnRef"`
	TxnDate     string          `json:"txnDate"`
	TxnAmount   decimal.Decimal `json:"txnAmount"`
	DrCrFlag    string          `json:"drCrFlag"`
	TxnType     string          `json:"txnType"`
	Payer       string          `json:"payer"`
	Description string          `json:"description"`
}

// ManualResult summarises a manual transaction file.
type ManualResult struct {
	RunID           uuid.UUID              `json:"importRunId"`
	Status          models.ImportRunStatus `json:"status"`
	Filename        string                 `json:"filename"`
	FileHash        string                 `json:"fileHash"`
	TotalRecords    int                    `json:"totalRecords"`
	InsertedRecords int                    `json:"insertedRecords"`
	FailedRecords   int                    `json:"failedRecords"`
	Errors          []string               `json:"errors"`
}

type ManualService struct {
	db       *gorm.DB
	runs     *repository.ImportRunRepository
	manual   *repository.ManualTransactionRepository
	maxBytes int64
}

func NewManualService(db *gorm.DB, maxBytes int64) *ManualService {
	if maxBytes <= 0 {
		maxBytes = config.DefaultManualMaxBytes
	}
	return &ManualService{
		db:       db,
		runs:     repository.NewImportRunRepository(db),
		manual:   repository.NewManualTransactionRepository(db),
		maxBytes: maxBytes,
	}
}

type manualInput struct {
	ref         string
	date        time.Time
	amount      decimal.Decimal
	flag        string
	txnType     string
	payer       string
	description string
}

// Create stores one manual transaction.
func (s *ManualService) Create(ctx context.Context, req ManualRequest, createdBy string) (*models.ManualTransaction, error) {
	in := manualInput{
		ref:         req.TxnRef,
		amount:      req.TxnAmount,
		flag:        req.DrCrFlag,
		txnType:     req.TxnType,
		payer:       req.Payer,
		description: req.Description,
	}
	if strings.TrimSpace(req.TxnDate) != "" {
		date, err := csvrow.ParseDate(req.TxnDate, csvrow.ManualTransactionSchema().DateLayouts)
		if err != nil {
			return nil, &ValidationError{Message: "invalid txn_date format. Use yyyy-MM-dd or dd-MM-yyyy"}
		}
		in.date = date
	}

	m, err := buildManual(in)
	if err != nil {
		return nil, err
	}
	if createdBy != "" {
		m.CreatedBy = &createdBy
	}
	if err := s.manual.Create(ctx, m); err != nil {
		return nil, err
	}
	log.Printf("[manual] created txn ref=%s date=%s amount=%s", m.TxnRef, in.date.Format("2006-01-02"), m.TxnAmount)
	return m, nil
}

// Upload stores every valid row of a manual transaction file. Rows fail on
// their own; the run ends IMPORTED or PARTIAL.
func (s *ManualService) Upload(ctx context.Context, up Upload) (*ManualResult, error) {
	if len(up.Content) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(up.Content)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	reader, err := csvrow.NewReader(bytes.NewReader(up.Content), csvrow.ManualTransactionSchema())
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

	var res *ManualResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		runs := s.runs.WithTx(tx)
		manual := s.manual.WithTx(tx)

		run, created, err := runs.FindOrCreate(ctx, up.Content, up.Filename, models.FileTypeManualTxn, repository.RunMeta{UploadedBy: up.UploadedBy})
		if err != nil {
			return err
		}
		if !created {
			return &DuplicateFileError{UploadID: run.ID, Status: run.Status, InProgress: !run.Finalized()}
		}

		var rowErrs []models.ImportError
		failRow := func(line int, code, msg string) {
			rowErrs = append(rowErrs, models.ImportError{ImportRunID: run.ID, LineNo: line, Code: code, Message: msg})
		}

		seen := make(map[string]int)
		inserted := 0
		for _, row := range rows {
			if !row.Valid() {
				failRow(row.Line, models.ImportErrorValidation, row.Err.Message)
				continue
			}
			m, err := buildManual(fromRecord(row.Record))
			if err != nil {
				failRow(row.Line, models.ImportErrorValidation, err.Error())
				continue
			}

			key := manualKey(m)
			if first, dup := seen[key]; dup {
				failRow(row.Line, models.ImportErrorValidation,
					fmt.Sprintf("duplicate row in file for txn_ref/txn_date/txn_amount (first at line %d)", first))
				continue
			}
			seen[key] = row.Line

			m.ImportRunID = &run.ID
			if up.UploadedBy != "" {
				m.CreatedBy = &up.UploadedBy
			}
			err = manual.Create(ctx, m)
			if errors.Is(err, repository.ErrDuplicateManualTransaction) {
				failRow(row.Line, models.ImportErrorDuplicate, "duplicate in database: "+key)
				continue
			}
			if err != nil {
				return err
			}
			inserted++
		}

		if err := runs.RecordErrors(ctx, rowErrs); err != nil {
			return err
		}
		msg := ""
		if len(rowErrs) > 0 {
			msg = msgSomeRowsFailed
		}
		if err := runs.Finalize(ctx, run.ID, len(rows), inserted, len(rowErrs), msg); err != nil {
			return err
		}

		res = &ManualResult{
			RunID:           run.ID,
			Status:          models.ImportRunImported,
			Filename:        run.Filename,
			FileHash:        run.FileHash,
			TotalRecords:    len(rows),
			InsertedRecords: inserted,
			FailedRecords:   len(rowErrs),
			Errors:          make([]string, 0, len(rowErrs)),
		}
		if len(rowErrs) > 0 {
			res.Status = models.ImportRunPartial
		}
		for _, e := range rowErrs {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %s", e.LineNo, e.Message))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[manual] run=%s file=%s status=%s total=%d inserted=%d failed=%d",
		res.RunID, res.Filename, res.Status, res.TotalRecords, res.InsertedRecords, res.FailedRecords)
	return res, nil
}

// ManualRunView is one manual run with its rows and row errors.
type ManualRunView struct {
	Run          *models.ImportRun          `json:"run"`
	Errors       []models.ImportError       `json:"errors"`
	Transactions []models.ManualTransaction `json:"transactions"`
}

// RunDetail returns a manual run with up to limit of its stored rows.
func (s *ManualService) RunDetail(ctx context.Context, runID uuid.UUID, limit int) (*ManualRunView, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.FileType != models.FileTypeManualTxn {
		return nil, gorm.ErrRecordNotFound
	}
	view := &ManualRunView{Run: run}
	if view.Errors, err = s.runs.Errors(ctx, runID); err != nil {
		return nil, err
	}
	if view.Transactions, err = s.manual.ListByRun(ctx, runID, limit); err != nil {
		return nil, err
	}
	return view, nil
}

// ListRuns returns recent manual transaction runs, newest first.
func (s *ManualService) ListRuns(ctx context.Context, size int) ([]models.ImportRun, error) {
	return s.runs.ListByType(ctx, models.FileTypeManualTxn, size)
}

func fromRecord(rec *csvrow.Record) manualInput {
	return manualInput{
		ref:         rec.String(csvrow.ColTxnRef),
		date:        rec.Date(csvrow.ColTranDate),
		amount:      rec.Amount(csvrow.ColAmount),
		flag:        rec.String(csvrow.ColDrCrFlag),
		txnType:     rec.String(csvrow.ColTxnType),
		payer:       rec.String(csvrow.ColPayer),
		description: rec.String(csvrow.ColDescription),
	}
}

func buildManual(in manualInput) (*models.ManualTransaction, error) {
	if in.date.IsZero() {
		return nil, &ValidationError{Message: "txn_date is required"}
	}
	if !in.amount.IsPositive() {
		return nil, &ValidationError{Message: "txn_amount must be greater than zero"}
	}

	flag := strings.ToUpper(strings.TrimSpace(in.flag))
	if !oneOf(csvrow.DrCrFlags, flag) {
		return nil, &ValidationError{Message: "dr_cr_flag must be C, D, CR or DR"}
	}

	ref := strings.TrimSpace(in.ref)
	m := &models.ManualTransaction{
		TxnRef:    ref,
		TxnAmount: in.amount,
		DrCrFlag:  flag,
	}
	date := datatypes.Date(in.date)
	m.TxnDate = &date

	if t := strings.ToUpper(strings.TrimSpace(in.txnType)); t != "" {
		if !oneOf(ManualTxnTypes, t) {
			return nil, &ValidationError{Message: "txn_type must be NEFT, RTGS or IMPS"}
		}
		if ref == "" {
			return nil, &ValidationError{Message: "txn_ref is required for txn_type " + t}
		}
		m.TxnType = &t
	}
	if v := strings.TrimSpace(in.payer); v != "" {
		m.Payer = &v
	}
	if v := strings.TrimSpace(in.description); v != "" {
		m.Description = &v
	}
	return m, nil
}

func manualKey(m *models.ManualTransaction) string {
	return fmt.Sprintf("%s|%s|%s", m.TxnRef, dateKey(m.TxnDate), canonicalAmount(m.TxnAmount))
}

func oneOf(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
