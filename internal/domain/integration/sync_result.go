package integration

import (
	"errors"
	"time"
)

// ---------------------------------------------------------------------------
// SyncStatus represents the synchronization status
// ---------------------------------------------------------------------------

// SyncStatus represents the synchronization status
type SyncStatus string

const (
	// SyncStatusPending indicates sync is pending
	SyncStatusPending SyncStatus = "PENDING"
	// SyncStatusInProgress indicates sync is in progress
	SyncStatusInProgress SyncStatus = "IN_PROGRESS"
	// SyncStatusSuccess indicates every item was synced
	SyncStatusSuccess SyncStatus = "SUCCESS"
	// SyncStatusPartial indicates some items failed
	SyncStatusPartial SyncStatus = "PARTIAL"
	// SyncStatusFailed indicates every item failed
	SyncStatusFailed SyncStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusInProgress, SyncStatusSuccess, SyncStatusPartial, SyncStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncStatus
func (s SyncStatus) String() string {
	return string(s)
}

// StatusFor derives the overall status from aggregate counters
func StatusFor(total, failed int) SyncStatus {
	switch {
	case failed == 0:
		return SyncStatusSuccess
	case failed >= total:
		return SyncStatusFailed
	default:
		return SyncStatusPartial
	}
}

// Failure codes attached to SyncFailure
const (
	FailureCodeMalformed   = "MALFORMED_PRODUCT"
	FailureCodeCurrency    = "MISSING_CURRENCY"
	FailureCodeUnavailable = "ERP_UNAVAILABLE"
	FailureCodeAuth        = "ERP_AUTH_FAILED"
	FailureCodeStore       = "STORE_WRITE_FAILED"
	FailureCodeUnknown     = "SYNC_FAILED"
)

// SyncFailure represents a failed sync item
type SyncFailure struct {
	// ItemID is the external id of the failed item
	ItemID string `json:"productId"`
	// ErrorCode classifies the failure
	ErrorCode string `json:"code"`
	// ErrorMessage is the error description
	ErrorMessage string `json:"error"`
}

// NewSyncFailure builds a SyncFailure and classifies err
func NewSyncFailure(itemID string, err error) SyncFailure {
	code := FailureCodeUnknown
	switch {
	case errors.Is(err, ErrMissingCurrency):
		code = FailureCodeCurrency
	case errors.Is(err, ErrMalformedProduct):
		code = FailureCodeMalformed
	case errors.Is(err, ErrERPAuthFailed):
		code = FailureCodeAuth
	case errors.Is(err, ErrERPUnavailable), errors.Is(err, ErrERPRequestFailed):
		code = FailureCodeUnavailable
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return SyncFailure{ItemID: itemID, ErrorCode: code, ErrorMessage: msg}
}

// SyncResult represents the result of a sync operation
type SyncResult struct {
	// Status is the overall sync status
	Status SyncStatus
	// TotalCount is the total number of items to sync
	TotalCount int
	// CreatedCount is the number of items created locally
	CreatedCount int
	// UpdatedCount is the number of items updated locally
	UpdatedCount int
	// FailedCount is the number of failed items
	FailedCount int
	// FailedItems contains details about failed items
	FailedItems []SyncFailure
	// DryRun is set when no write was performed
	DryRun bool
	// SyncedAt is when the sync completed
	SyncedAt time.Time
}

// SuccessCount returns the number of items written
func (r *SyncResult) SuccessCount() int {
	return r.CreatedCount + r.UpdatedCount
}

// Finalize sets the status and completion time from the counters
func (r *SyncResult) Finalize(now time.Time) {
	r.FailedCount = len(r.FailedItems)
	if r.FailedCount > r.TotalCount {
		r.FailedCount = r.TotalCount
	}
	r.Status = StatusFor(r.TotalCount, r.FailedCount)
	r.SyncedAt = now
}

// Summary returns the synchronous summary reported to the caller
func (r *SyncResult) Summary() SyncSummary {
	return SyncSummary{
		Success: r.Status != SyncStatusFailed || r.TotalCount == 0,
		Created: r.CreatedCount,
		Updated: r.UpdatedCount,
		Synced:  r.SuccessCount(),
	}
}

// SyncSummary is the synchronous result of a small sync job
type SyncSummary struct {
	Success bool `json:"success"`
	Created int  `json:"created"`
	Updated int  `json:"updated"`
	Synced  int  `json:"synced"`
}
