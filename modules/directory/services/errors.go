package services

import "github.com/iota-uz/dirsync/pkg/serrors"

var (
	ErrAlreadySyncing = serrors.NewError(
		"SYNC_ALREADY_SYNCING",
		"another sync task is still running for this data source",
		"wait for it to finish or cancel it",
	)
	ErrTaskCanceled = serrors.NewError(
		"SYNC_CANCELED",
		"sync task was canceled",
		"",
	)
	ErrLocalSourceNotSyncable = serrors.NewError(
		"SYNC_LOCAL_SOURCE",
		"local data sources are written directly and cannot be synced",
		"",
	)
	ErrFetchFailed = serrors.NewError(
		"SYNC_FETCH_FAILED",
		"could not fetch records from the external source",
		"check connectivity and source credentials",
	)
	ErrNotFound = serrors.NewError(
		"SYNC_NOT_FOUND",
		"not found",
		"",
	)
	ErrCodeConflict = serrors.NewError(
		"SYNC_CODE_CONFLICT",
		"entity code already exists in this data source",
		"",
	)
	ErrReferenceViolation = serrors.NewError(
		"SYNC_REFERENCE_VIOLATION",
		"write references a missing row",
		"",
	)
	ErrStatusConflict = serrors.NewError(
		"SYNC_STATUS_CONFLICT",
		"task is not in the expected status",
		"",
	)
)
