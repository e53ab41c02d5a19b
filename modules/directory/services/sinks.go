package services

import (
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory/domain/events"
	"github.com/iota-uz/dirsync/pkg/eventbus"
)

// Recorder is the audit sink contract. The engine emits one call per
// committed batch; persistence of the audit trail lives outside the engine.
type Recorder interface {
	Record(ev events.SyncStepCommitted)
}

// Notifier is the credential notification sink contract. Delivery (email,
// SMS) lives outside the engine.
type Notifier interface {
	Notify(ev events.UserCredentialIssued)
}

// SubscribeSinks wires recorder and notifier implementations to the bus.
// Either may be nil.
func SubscribeSinks(bus eventbus.EventBus, recorder Recorder, notifier Notifier) {
	if recorder != nil {
		bus.Subscribe(func(ev events.SyncStepCommitted) {
			recorder.Record(ev)
		})
	}
	if notifier != nil {
		bus.Subscribe(func(ev events.UserCredentialIssued) {
			notifier.Notify(ev)
		})
	}
}

// LogRecorder is the default audit sink: it writes one structured line per
// committed batch.
type LogRecorder struct {
	Log *logrus.Logger
}

func (r LogRecorder) Record(ev events.SyncStepCommitted) {
	r.Log.WithFields(logrus.Fields{
		"task_id":        ev.TaskID,
		"data_source_id": ev.DataSourceID,
		"operation":      ev.Operation,
		"object_type":    ev.ObjectType,
		"affected_rows":  ev.AffectedRows,
	}).Info("sync step committed")
}

// LogNotifier is the default notification sink. The generated password never
// reaches the log.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n LogNotifier) Notify(ev events.UserCredentialIssued) {
	n.Log.WithFields(logrus.Fields{
		"task_id":  ev.TaskID,
		"user_id":  ev.UserID,
		"username": ev.Username,
	}).Info("credential issued for new user")
}
