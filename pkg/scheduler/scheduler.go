package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RunFunc fires one sync for the given data source. Errors are logged, not
// retried; the next tick runs regardless.
type RunFunc func(ctx context.Context, dataSourceID uuid.UUID) error

// Scheduler owns a cron runner and one entry per data source.
type Scheduler struct {
	cron    *cron.Cron
	log     *logrus.Logger
	run     RunFunc
	mu      sync.Mutex
	entries map[uuid.UUID]cron.EntryID
}

func New(log *logrus.Logger, run RunFunc) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		log:     log,
		run:     run,
		entries: make(map[uuid.UUID]cron.EntryID),
	}
}

// Register schedules periodic syncs for a data source. Re-registering with a
// new expression replaces the previous entry.
func (s *Scheduler) Register(dataSourceID uuid.UUID, spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[dataSourceID]; ok {
		s.cron.Remove(prev)
	}

	id, err := s.cron.AddFunc(spec, func() {
		if err := s.run(context.Background(), dataSourceID); err != nil {
			s.log.WithError(err).WithField("data_source_id", dataSourceID).
				Warn("scheduled sync failed")
		}
	})
	if err != nil {
		return err
	}
	s.entries[dataSourceID] = id
	return nil
}

func (s *Scheduler) Unregister(dataSourceID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[dataSourceID]; ok {
		s.cron.Remove(id)
		delete(s.entries, dataSourceID)
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling new runs and waits for in-flight ones.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
