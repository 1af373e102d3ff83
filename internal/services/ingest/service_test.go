package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"recon-service/internal/csvrow"
	"recon-service/internal/models"
	"recon-service/internal/repository"
	"recon-service/internal/services/ingest/mocks"
	"recon-service/internal/services/matching"
	"recon-service/internal/tenant"
	tenantmocks "recon-service/internal/tenant/mocks"
	"recon-service/internal/testdb"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var uploader = tenant.Scope{BoardID: 1, EmployerID: 10, CanWrite: true}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	tenants *tenantmocks.MockResolver
	refs    *mocks.MockReferenceChecker
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	db := testdb.Open(t)
	f := &fixture{
		db:      db,
		tenants: tenantmocks.NewMockResolver(ctrl),
		refs:    mocks.NewMockReferenceChecker(ctrl),
	}
	f.svc = NewService(db, f.tenants, f.refs, opts)
	return f
}

func (f *fixture) asUploader() {
	f.tenants.EXPECT().ResolveWritable(gomock.Any()).Return(uploader, nil).AnyTimes()
	f.tenants.EXPECT().Resolve(gomock.Any()).Return(uploader, nil).AnyTimes()
}

func (f *fixture) details(t *testing.T, uploadID uuid.UUID) []models.SearchDetail {
	t.Helper()
	var rows []models.SearchDetail
	require.NoError(t, f.db.Where("upload_id = ?", uploadID).Order("line_no").Find(&rows).Error)
	return rows
}

func (f *fixture) run(t *testing.T, id uuid.UUID) models.ImportRun {
	t.Helper()
	var run models.ImportRun
	require.NoError(t, f.db.First(&run, "id = ?", id).Error)
	return run
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) engine(t *testing.T) *matching.Engine {
	t.Helper()
	engine, err := matching.NewEngine(f.db, f.tenants, repository.NewAuditRepository(f.db), matching.Options{})
	require.NoError(t, err)
	return engine
}

func (f *fixture) bankTxn(t *testing.T, id int64, ref, amount, date string) {
	t.Helper()
	d := datatypes.Date(mustDate(t, date))
	require.NoError(t, f.db.Create(&models.BankTransaction{
		SourceTxnID: id,
		Source:      "MT940",
		TxnDate:     &d,
		Amount:      decimal.RequireFromString(amount),
		TxnRef:      &ref,
		DrCrFlag:    "C",
		CreatedAt:   time.Now(),
	}).Error)
}

func upload(body string) Upload {
	return Upload{Filename: "search.csv", Content: []byte(body), UploadedBy: "ops"}
}

func TestSubmit_LoadsValidRows(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()

	resp, err := f.svc.Submit(context.Background(), upload(
		"txn_ref,txn_date,txn_amount,txn_type,description\n"+
			"R1,2024-01-05,100.00,neft,first\n"+
			"R2,5-Jan-2024,20,,\n"))
	require.NoError(t, err)

	assert.Equal(t, StatusLoaded, resp.Status)
	assert.Equal(t, models.ImportRunImported, resp.RunStatus)
	assert.Equal(t, 2, resp.TotalRows)
	assert.Equal(t, 2, resp.SuccessfulRows)
	assert.Equal(t, 0, resp.FailedRows)
	assert.Empty(t, resp.Errors)
	assert.Len(t, resp.FileHash, 64)

	rows := f.details(t, resp.UploadID)
	require.Len(t, rows, 2)
	assert.Equal(t, "NEFT", rows[0].TxnType)
	assert.Equal(t, "UPI", rows[1].TxnType)
	for _, r := range rows {
		assert.Equal(t, models.StatusPending, r.Status)
		assert.Equal(t, uploader.BoardID, r.BoardID)
		assert.Equal(t, uploader.EmployerID, r.EmployerID)
		assert.Nil(t, r.ToliID)
	}
	assert.True(t, rows[0].TxnAmount.Equal(decimal.NewFromInt(100)))

	run := f.run(t, resp.UploadID)
	assert.Equal(t, models.ImportRunImported, run.Status)
	assert.Equal(t, 2, run.TotalRecords)
	assert.Equal(t, 2, run.ProcessedRecords)
	assert.Equal(t, models.FileTypeSearchDetail, run.FileType)
	require.NotNil(t, run.CompletedAt)
}

func TestSubmit_DuplicateRowsInFileAreNotStored(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()

	resp, err := f.svc.Submit(context.Background(), upload(
		"txn_ref,txn_date,txn_amount\n"+
			"ABC,2024-01-05,100.00\n"+
			"ABC,2024-01-05,100\n"))
	require.NoError(t, err)

	assert.Equal(t, StatusLoaded, resp.Status)
	assert.Equal(t, models.ImportRunPartial, resp.RunStatus)
	assert.Equal(t, 2, resp.TotalRows)
	assert.Equal(t, 0, resp.SuccessfulRows)
	assert.Equal(t, 2, resp.FailedRows)
	assert.Equal(t, []string{"line 2: duplicate row in file", "line 3: duplicate row in file"}, resp.Errors)

	assert.Empty(t, f.details(t, resp.UploadID))

	var codes []string
	require.NoError(t, f.db.Model(&models.ImportError{}).Where("import_run_id = ?", resp.UploadID).Order("line_no").Pluck("code", &codes).Error)
	assert.Equal(t, []string{models.ImportErrorDuplicate, models.ImportErrorDuplicate}, codes)

	view, err := f.svc.Run(context.Background(), resp.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Run.TotalRecords)
	assert.Equal(t, 2, view.Run.FailedRecords)
	assert.Empty(t, view.StatusCounts)
	assert.Len(t, view.Errors, 2)
}

func TestSubmit_UnknownReferenceRejectsWholeUpload(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()
	f.refs.EXPECT().ReferenceExists(gomock.Any(), "W1", int64(1), int64(10)).Return(true, nil)
	f.refs.EXPECT().ReferenceExists(gomock.Any(), "W2", int64(1), int64(10)).Return(false, nil)

	resp, err := f.svc.Submit(context.Background(), upload(
		"txn_ref,txn_date,txn_amount,wage_list\n"+
			"R1,2024-01-05,10,W1\n"+
			"R2,2024-01-05,20,W2\n"+
			"R3,2024-01-05,30,W1\n"))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, models.ImportRunFailed, resp.RunStatus)
	assert.Equal(t, 3, resp.TotalRows)
	assert.Equal(t, 0, resp.SuccessfulRows)
	assert.Equal(t, 3, resp.FailedRows)
	assert.Equal(t, msgRejectRefMissing, resp.Message)

	rows := f.details(t, resp.UploadID)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, models.StatusFailed, r.Status)
		require.NotNil(t, r.Error)
	}
	assert.Equal(t, msgRejectRefMissing, *rows[0].Error)
	assert.Equal(t, "Invalid request_nmbr/wage_list 'W2'; worker receipt not found", *rows[1].Error)

	run := f.run(t, resp.UploadID)
	assert.Equal(t, models.ImportRunFailed, run.Status)
	assert.Equal(t, 3, run.FailedRecords)
	assert.Equal(t, 0, run.ProcessedRecords)

	var audit models.MatchAuditLog
	require.NoError(t, f.db.First(&audit, "upload_id = ?", resp.UploadID).Error)
	assert.Equal(t, models.AuditActionReject, audit.Action)
	assert.Equal(t, msgRejectRefMissing, audit.Reason)
}

func TestSubmit_ReferenceLookupFailureWritesNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()
	boom := errors.New("receipts unavailable")
	f.refs.EXPECT().ReferenceExists(gomock.Any(), "W1", int64(1), int64(10)).Return(false, boom)

	_, err := f.svc.Submit(context.Background(), upload("txn_ref,txn_date,txn_amount,request_nmbr\nR1,2024-01-05,10,W1\n"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), f.count(t, &models.ImportRun{}))
	assert.Equal(t, int64(0), f.count(t, &models.SearchDetail{}))
}

func TestSubmit_RefAlreadyFoundRejectsUpload(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()

	date := datatypes.Date(mustDate(t, "2024-01-05"))
	matched := int64(77)
	require.NoError(t, f.db.Create(&models.SearchDetail{
		UploadID: uuid.New(), BoardID: 1, EmployerID: 10, TxnRef: "R1", TxnDate: &date,
		TxnAmount: decimal.NewFromInt(10), Status: models.StatusFound, MatchedTxnID: &matched,
	}).Error)
	require.NoError(t, f.db.Create(&models.SearchDetail{
		UploadID: uuid.New(), BoardID: 1, EmployerID: 99, TxnRef: "R2", TxnDate: &date,
		TxnAmount: decimal.NewFromInt(10), Status: models.StatusFound, MatchedTxnID: &matched,
	}).Error)

	resp, err := f.svc.Submit(context.Background(), upload(
		"txn_ref,txn_date,txn_amount\n"+
			"R1,2024-01-05,10\n"+
			"R2,2024-01-05,10\n"))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, "Upload rejected because txn_ref already reconciled: R1", resp.Message)
	assert.Equal(t, 2, resp.FailedRows)

	rows := f.details(t, resp.UploadID)
	require.Len(t, rows, 2)
	assert.Equal(t, msgAlreadyFound, *rows[0].Error)
	assert.Equal(t, resp.Message, *rows[1].Error)
}

func TestSubmit_PendingRowsInOtherUploadsDoNotCollide(t *testing.T) {
	// Only FOUND rows block a ref. Two uploads naming the same ref both load
	// while neither is matched yet, and both then match the same bank line.
	f := newFixture(t, Options{})
	f.asUploader()
	f.bankTxn(t, 501, "R1", "10", "2024-01-05")

	first, err := f.svc.Submit(context.Background(), upload("txn_ref,txn_date,txn_amount\nR1,2024-01-05,10\n"))
	require.NoError(t, err)
	second, err := f.svc.Submit(context.Background(), upload("txn_ref,txn_date,txn_amount,description\nR1,2024-01-05,10,again\n"))
	require.NoError(t, err)

	assert.Equal(t, StatusLoaded, first.Status)
	assert.Equal(t, StatusLoaded, second.Status)
	assert.NotEqual(t, first.UploadID, second.UploadID)

	engine := f.engine(t)
	for _, id := range []uuid.UUID{first.UploadID, second.UploadID} {
		res, err := engine.MatchUpload(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Matched)

		rows := f.details(t, id)
		require.Len(t, rows, 1)
		assert.Equal(t, models.StatusFound, rows[0].Status)
		require.NotNil(t, rows[0].MatchedTxnID)
		assert.Equal(t, int64(501), *rows[0].MatchedTxnID)
	}
}

func TestSubmit_DuplicateRefsDifferingOnlyInCaseAreOneRow(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()
	f.bankTxn(t, 1, "ABC", "100", "2024-01-05")

	resp, err := f.svc.Submit(context.Background(), upload(
		"txn_ref,txn_date,txn_amount\n"+
			"abc,5-Jan-2024,100.00\n"+
			"ABC ,2024-01-05,100\n"))
	require.NoError(t, err)

	assert.Equal(t, 0, resp.SuccessfulRows)
	assert.Equal(t, 2, resp.FailedRows)
	assert.Equal(t, []string{"line 2: duplicate row in file", "line 3: duplicate row in file"}, resp.Errors)
	assert.Empty(t, f.details(t, resp.UploadID))

	res, err := f.engine(t).MatchUpload(context.Background(), resp.UploadID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Matched)
}

func TestSubmit_FoundRefBlocksOtherCasing(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()

	date := datatypes.Date(mustDate(t, "2024-01-05"))
	matched := int64(1)
	require.NoError(t, f.db.Create(&models.SearchDetail{
		UploadID: uuid.New(), BoardID: 1, EmployerID: 10, TxnRef: "abc", TxnDate: &date,
		TxnAmount: decimal.NewFromInt(100), Status: models.StatusFound, MatchedTxnID: &matched,
	}).Error)

	resp, err := f.svc.Submit(context.Background(), upload("txn_ref,txn_date,txn_amount\nAbc,2024-01-05,100\n"))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, "Upload rejected because txn_ref already reconciled: ABC", resp.Message)
	rows := f.details(t, resp.UploadID)
	require.Len(t, rows, 1)
	assert.Equal(t, msgAlreadyFound, *rows[0].Error)
}

func TestSubmit_TenantComesFromScopeNotFile(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()

	resp, err := f.svc.Submit(context.Background(), upload(
		"board_id,employer_id,txn_ref,txn_date,txn_amount\n"+
			"999,888,R1,2024-01-05,10\n"))
	require.NoError(t, err)

	rows := f.details(t, resp.UploadID)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].BoardID)
	assert.Equal(t, int64(10), rows[0].EmployerID)
}

func TestSubmit_SameBytesTwiceReturnsExistingUpload(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()
	body := "txn_ref,txn_date,txn_amount\nR1,2024-01-05,10\n"

	first, err := f.svc.Submit(context.Background(), upload(body))
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), upload(body))
	var dup *DuplicateFileError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.UploadID, dup.UploadID)
	assert.Equal(t, models.ImportRunImported, dup.Status)
	assert.False(t, dup.InProgress)

	assert.Equal(t, int64(1), f.count(t, &models.ImportRun{}))
	assert.Equal(t, int64(1), f.count(t, &models.SearchDetail{}))
}

func TestSubmit_RowErrorsGivePartialLoad(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()

	resp, err := f.svc.Submit(context.Background(), upload(
		"txn_ref,txn_date,txn_amount\n"+
			"R1,2024-13-45,10\n"+
			"R2,2024-01-05,10\n"))
	require.NoError(t, err)

	assert.Equal(t, StatusLoaded, resp.Status)
	assert.Equal(t, models.ImportRunPartial, resp.RunStatus)
	assert.Equal(t, 1, resp.SuccessfulRows)
	assert.Equal(t, 1, resp.FailedRows)
	assert.Equal(t, msgSomeRowsFailed, resp.Message)
	require.Len(t, resp.Errors, 1)
	assert.True(t, strings.HasPrefix(resp.Errors[0], "line 2: invalid txn_date format"))

	rows := f.details(t, resp.UploadID)
	require.Len(t, rows, 2)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
	assert.Nil(t, rows[0].TxnDate)
	assert.Equal(t, models.StatusPending, rows[1].Status)

	run := f.run(t, resp.UploadID)
	assert.Equal(t, models.ImportRunPartial, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, msgSomeRowsFailed, *run.ErrorMessage)
}

func TestSubmit_StructuralErrorsWriteNothing(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "empty file", body: "", wantErr: ErrEmptyFile},
		{name: "too large", body: strings.Repeat("x", 65), wantErr: ErrFileTooLarge},
		{name: "header only", body: "txn_ref,txn_date,txn_amount\n", wantErr: ErrNoRecords},
		{name: "blank header", body: " , \nR1,2024-01-05\n", wantErr: csvrow.ErrMissingHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{MaxUploadBytes: 64})
			f.asUploader()

			_, err := f.svc.Submit(context.Background(), upload(tt.body))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsStructural(err))
			assert.Equal(t, int64(0), f.count(t, &models.ImportRun{}))
		})
	}
}

func TestSubmit_TenantFailureWritesNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.tenants.EXPECT().ResolveWritable(gomock.Any()).Return(tenant.Scope{}, tenant.ErrNoWriteAccess)

	_, err := f.svc.Submit(context.Background(), upload("txn_ref,txn_date,txn_amount\nR1,2024-01-05,10\n"))
	assert.ErrorIs(t, err, tenant.ErrNoWriteAccess)
	assert.Equal(t, int64(0), f.count(t, &models.ImportRun{}))
}

func TestMatched_ShowsCallerRequestNumber(t *testing.T) {
	f := newFixture(t, Options{})
	f.asUploader()
	f.refs.EXPECT().ReferenceExists(gomock.Any(), "WL-7", int64(1), int64(10)).Return(true, nil)

	resp, err := f.svc.Submit(context.Background(), upload("txn_ref,txn_date,txn_amount,request_nmbr\nR1,2024-01-05,10,WL-7\n"))
	require.NoError(t, err)

	rows := f.details(t, resp.UploadID)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].RequestNmbr)
	assert.Equal(t, "WL-7-"+resp.UploadID.String(), *rows[0].RequestNmbr)

	require.NoError(t, f.db.Model(&models.SearchDetail{}).Where("id = ?", rows[0].ID).
		Updates(map[string]interface{}{"status": string(models.StatusFound), "matched_txn_id": 5}).Error)

	views, err := f.svc.Matched(context.Background(), resp.UploadID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(5), views[0].MatchedTxnID)
	assert.Equal(t, "2024-01-05", views[0].TxnDate)
	require.NotNil(t, views[0].RequestNmbr)
	assert.Equal(t, "WL-7", *views[0].RequestNmbr)
}

func TestRun_HidesOtherTenantsUploads(t *testing.T) {
	f := newFixture(t, Options{})
	f.tenants.EXPECT().ResolveWritable(gomock.Any()).Return(uploader, nil)
	resp, err := f.svc.Submit(context.Background(), upload("txn_ref,txn_date,txn_amount\nR1,2024-01-05,10\n"))
	require.NoError(t, err)

	f.tenants.EXPECT().Resolve(gomock.Any()).Return(uploader, nil)
	view, err := f.svc.Run(context.Background(), resp.UploadID)
	require.NoError(t, err)
	assert.Equal(t, resp.UploadID, view.Run.ID)
	assert.Empty(t, view.Errors)
	assert.Equal(t, int64(1), view.StatusCounts[models.StatusPending])
	assert.Empty(t, view.Audit)

	f.tenants.EXPECT().Resolve(gomock.Any()).Return(tenant.Scope{BoardID: 2, EmployerID: 10}, nil)
	_, err = f.svc.Run(context.Background(), resp.UploadID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
