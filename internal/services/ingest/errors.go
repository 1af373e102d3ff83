package ingest

import (
	"errors"
	"fmt"

	"recon-service/internal/csvrow"
	"recon-service/internal/models"

	"github.com/google/uuid"
)

var (
	ErrEmptyFile    = errors.New("file is required")
	ErrFileTooLarge = errors.New("file exceeds max allowed size")
	ErrNoRecords    = errors.New("no records found in CSV")
)

// Row error texts that callers see in the errors list.
const (
	msgDuplicateInFile  = "duplicate row in file"
	msgAlreadyFound     = "txn_ref already reconciled (FOUND)"
	msgRefNotFound      = "Invalid request_nmbr/wage_list '%s'; worker receipt not found"
	msgRejectRefMissing = "Upload rejected because request_nmbr/wage_list not found"
	msgRejectFound      = "Upload rejected because txn_ref already reconciled: %s"
	msgSomeRowsFailed   = "Some rows failed validation"
)

// DuplicateFileError is returned when the exact bytes were uploaded before.
type DuplicateFileError struct {
	UploadID   uuid.UUID
	Status     models.ImportRunStatus
	InProgress bool
}

func (e *DuplicateFileError) Error() string {
	if e.InProgress {
		return fmt.Sprintf("duplicate file by hash, upload %s is still being processed", e.UploadID)
	}
	return fmt.Sprintf("duplicate file by hash, upload already exists: %s", e.UploadID)
}

// ValidationError is a single-record validation failure of the manual API.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsStructural reports whether err rejects the file before any row is read.
func IsStructural(err error) bool {
	return errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrNoRecords) ||
		errors.Is(err, csvrow.ErrMissingHeader) ||
		errors.Is(err, csvrow.ErrUnreadable)
}
