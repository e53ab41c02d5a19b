package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory"
	"github.com/iota-uz/dirsync/modules/directory/services"
	"github.com/iota-uz/dirsync/pkg/composables"
	"github.com/iota-uz/dirsync/pkg/configuration"
	"github.com/iota-uz/dirsync/pkg/eventbus"
)

type runtime struct {
	conf   *configuration.Configuration
	pool   *pgxpool.Pool
	log    *logrus.Logger
	module *directory.Module
}

func newRuntime(ctx context.Context) (*runtime, error) {
	conf := configuration.Use()
	log := conf.Logger()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(dialCtx, conf.Database.Opts)
	if err != nil {
		return nil, err
	}

	bus := eventbus.NewEventPublisher(log)
	services.SubscribeSinks(bus, services.LogRecorder{Log: log}, services.LogNotifier{Log: log})

	mod := directory.NewModule(bus, log, directory.Options{
		BatchSize: conf.Sync.BatchSize,
		Orchestrator: services.OrchestratorOptions{
			FetchTimeout:  conf.Sync.FetchTimeout,
			RowErrorLimit: conf.Sync.RowErrorLimit,
		},
	})

	return &runtime{conf: conf, pool: pool, log: log, module: mod}, nil
}

// ctx returns a context carrying the connection pool, the way every service
// and repository expects to find it.
func (r *runtime) ctx(ctx context.Context) context.Context {
	return composables.WithPool(ctx, r.pool)
}

func (r *runtime) close() {
	r.pool.Close()
	r.conf.Unload()
}
