package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"recon-service/internal/csvrow"
	"recon-service/internal/models"
	"recon-service/internal/repository"
	"recon-service/internal/tenant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ReferenceChecker looks up the upstream payment request a search row claims
// to settle.
//
//go:generate mockgen -destination=mocks/mock_reference.go -package=mocks -source=gates.go ReferenceChecker
type ReferenceChecker interface {
	ReferenceExists(ctx context.Context, identifier string, boardID, employerID int64) (bool, error)
}

// entry is one data row on its way to the store.
type entry struct {
	line    int
	detail  *models.SearchDetail
	code    string
	persist bool
	// request is the caller's identifier before upload scoping.
	request string
}

func (e *entry) failed() bool { return e.detail.Status == models.StatusFailed }

// fail keeps the first failure of a row.
func (e *entry) fail(code, msg string) {
	if !models.CanTransition(e.detail.Status, models.StatusFailed) {
		return
	}
	e.detail.Status = models.StatusFailed
	e.detail.Error = &msg
	e.code = code
}

type batch struct {
	uploadID uuid.UUID
	scope    tenant.Scope
	entries  []*entry
	reject   string
}

func newBatch(uploadID uuid.UUID, scope tenant.Scope, rows []csvrow.Row) *batch {
	b := &batch{uploadID: uploadID, scope: scope, entries: make([]*entry, 0, len(rows))}
	for _, row := range rows {
		b.entries = append(b.entries, buildEntry(uploadID, scope, row))
	}
	return b
}

// buildEntry maps a parsed row onto a PENDING detail, or a FAILED one carrying
// the row error. The tenant always comes from scope.
func buildEntry(uploadID uuid.UUID, scope tenant.Scope, row csvrow.Row) *entry {
	d := &models.SearchDetail{
		ID:         uuid.New(),
		UploadID:   uploadID,
		LineNo:     row.Line,
		BoardID:    scope.BoardID,
		EmployerID: scope.EmployerID,
		ToliID:     scope.ToliID,
		Status:     models.StatusPending,
	}
	e := &entry{line: row.Line, detail: d, persist: true}

	if !row.Valid() {
		d.TxnRef = row.Raw[csvrow.ColTxnRef]
		d.TxnType = strings.ToUpper(row.Raw[csvrow.ColTxnType])
		e.fail(models.ImportErrorValidation, row.Err.Message)
		return e
	}

	rec := row.Record
	date := datatypes.Date(rec.Date(csvrow.ColTxnDate))
	d.TxnDate = &date
	d.TxnRef = rec.String(csvrow.ColTxnRef)
	d.TxnAmount = rec.Amount(csvrow.ColTxnAmount)
	d.TxnType = rec.String(csvrow.ColTxnType)
	if v := rec.String(csvrow.ColDescription); v != "" {
		d.Description = &v
	}
	if v := rec.String(csvrow.ColRequestNmbr); v != "" {
		e.request = v
		scoped := repository.ScopedRequestNmbr(v, uploadID)
		d.RequestNmbr = &scoped
	}
	return e
}

func dupKey(d *models.SearchDetail) string {
	return fmt.Sprintf("%s|%s|%s", repository.RefKey(d.TxnRef), dateKey(d.TxnDate), canonicalAmount(d.TxnAmount))
}

func dateKey(d *datatypes.Date) string {
	if d == nil {
		return ""
	}
	return time.Time(*d).Format("2006-01-02")
}

// canonicalAmount drops trailing zeros so 100, 100.0 and 100.00 collide.
func canonicalAmount(a decimal.Decimal) string {
	return a.String()
}

// markDuplicates fails every valid row whose key occurs more than once. Such
// rows are reported but never stored.
func (b *batch) markDuplicates() {
	counts := make(map[string]int)
	for _, e := range b.entries {
		if !e.failed() {
			counts[dupKey(e.detail)]++
		}
	}
	for _, e := range b.entries {
		if e.failed() || counts[dupKey(e.detail)] < 2 {
			continue
		}
		e.fail(models.ImportErrorDuplicate, msgDuplicateInFile)
		e.persist = false
	}
}

// checkReferences fails rows whose request number has no upstream receipt. Any
// such row rejects the whole upload.
func (b *batch) checkReferences(ctx context.Context, refs ReferenceChecker) error {
	known := make(map[string]bool)
	for _, e := range b.entries {
		if e.failed() || e.request == "" {
			continue
		}
		exists, seen := known[e.request]
		if !seen {
			var err error
			exists, err = refs.ReferenceExists(ctx, e.request, b.scope.BoardID, b.scope.EmployerID)
			if err != nil {
				return err
			}
			known[e.request] = exists
		}
		if !exists {
			e.fail(models.ImportErrorRejected, fmt.Sprintf(msgRefNotFound, e.request))
			b.reject = msgRejectRefMissing
		}
	}
	return nil
}

// checkCollisions fails rows whose ref is already FOUND for the tenant and
// rejects the upload naming those refs.
func (b *batch) checkCollisions(ctx context.Context, details *repository.SearchDetailRepository, batchSize int) error {
	seen := make(map[string]struct{})
	var refs []string
	for _, e := range b.entries {
		if e.failed() {
			continue
		}
		k := repository.RefKey(e.detail.TxnRef)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			refs = append(refs, k)
		}
	}

	found, err := details.FoundRefs(ctx, b.scope, refs, batchSize)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}

	for _, e := range b.entries {
		if _, hit := found[repository.RefKey(e.detail.TxnRef)]; hit && !e.failed() {
			e.fail(models.ImportErrorRejected, msgAlreadyFound)
		}
	}
	hits := make([]string, 0, len(found))
	for ref := range found {
		hits = append(hits, ref)
	}
	sort.Strings(hits)
	b.reject = fmt.Sprintf(msgRejectFound, strings.Join(hits, ", "))
	return nil
}

// applyRejection forces every row that survived the gates to FAILED.
func (b *batch) applyRejection() {
	for _, e := range b.entries {
		if !e.failed() {
			e.fail(models.ImportErrorRejected, b.reject)
		}
	}
}

func (b *batch) rejected() bool { return b.reject != "" }

func (b *batch) failedCount() int {
	n := 0
	for _, e := range b.entries {
		if e.failed() {
			n++
		}
	}
	return n
}

func (b *batch) persistable() []*models.SearchDetail {
	out := make([]*models.SearchDetail, 0, len(b.entries))
	for _, e := range b.entries {
		if e.persist {
			out = append(out, e.detail)
		}
	}
	return out
}

func (b *batch) importErrors(runID uuid.UUID) []models.ImportError {
	var errs []models.ImportError
	for _, e := range b.entries {
		if !e.failed() {
			continue
		}
		errs = append(errs, models.ImportError{
			ImportRunID: runID,
			LineNo:      e.line,
			Code:        e.code,
			Message:     *e.detail.Error,
		})
	}
	return errs
}

func (b *batch) messages() []string {
	var msgs []string
	for _, e := range b.entries {
		if e.failed() {
			msgs = append(msgs, fmt.Sprintf("line %d: %s", e.line, *e.detail.Error))
		}
	}
	return msgs
}
