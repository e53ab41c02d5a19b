package events

import (
	"github.com/google/uuid"

	"github.com/iota-uz/dirsync/modules/directory/domain/synctask"
)

// SyncStepCommitted is published after every committed create/update/delete
// batch. The audit recorder sink consumes it; the engine persists no audit
// data itself.
type SyncStepCommitted struct {
	TaskID       uuid.UUID
	DataSourceID uuid.UUID
	Operation    synctask.Operation
	ObjectType   synctask.ObjectType
	AffectedRows int
}

// UserCredentialIssued is published for every created user that received a
// generated initial password. The notification sink consumes it; the engine
// never sends email or SMS directly.
type UserCredentialIssued struct {
	TaskID       uuid.UUID
	DataSourceID uuid.UUID
	UserID       int64
	Username     string
	Email        string
	Phone        string
	RawPassword  string
}

// SyncCompleted is published once per run with the terminal task.
type SyncCompleted struct {
	Task synctask.SyncTask
}
