package synctask

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions. At most
// one non-terminal task may exist per data source; that row is the sync lock.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition enumerates the legal edges of the task state machine:
// pending -> running -> {succeeded, failed}, plus pending -> failed for tasks
// that die before their first step (e.g. fetch failure).
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusSucceeded || to == StatusFailed
	default:
		return false
	}
}

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

type ObjectType string

const (
	ObjectDepartment     ObjectType = "department"
	ObjectUser           ObjectType = "user"
	ObjectUserDepartment ObjectType = "user_department"
	ObjectUserLeader     ObjectType = "user_leader"
	ObjectTenantEntity   ObjectType = "tenant_entity"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// OpCounters are the per-object-type change counters on a task.
type OpCounters struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
}

type Counters map[ObjectType]*OpCounters

func NewCounters() Counters {
	return Counters{}
}

func (c Counters) Add(t ObjectType, op Operation, n int) {
	oc, ok := c[t]
	if !ok {
		oc = &OpCounters{}
		c[t] = oc
	}
	switch op {
	case OpCreate:
		oc.Created += n
	case OpUpdate:
		oc.Updated += n
	case OpDelete:
		oc.Deleted += n
	}
}

func (c Counters) Skip(t ObjectType, n int) {
	if n <= 0 {
		return
	}
	oc, ok := c[t]
	if !ok {
		oc = &OpCounters{}
		c[t] = oc
	}
	oc.Skipped += n
}

// RowError describes one skipped record. Non-fatal; the run proceeds.
type RowError struct {
	ObjectType ObjectType `json:"object_type"`
	Code       string     `json:"code"`
	Reason     string     `json:"reason"`
}

// SyncTask is the immutable record of one sync run.
type SyncTask struct {
	ID           uuid.UUID
	DataSourceID uuid.UUID
	Trigger      Trigger
	Mode         datasource.SyncMode
	Policy       datasource.SyncPolicy
	Operator     string
	Status       Status
	Error        string
	Counters     Counters
	RowErrors    []RowError
	Canceled     bool
	StartedAt    time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
}

func New(dataSourceID uuid.UUID, operator string, trigger Trigger, mode datasource.SyncMode, policy datasource.SyncPolicy) SyncTask {
	return SyncTask{
		ID:           uuid.New(),
		DataSourceID: dataSourceID,
		Trigger:      trigger,
		Mode:         mode,
		Policy:       policy,
		Operator:     operator,
		Status:       StatusPending,
		Counters:     NewCounters(),
	}
}
