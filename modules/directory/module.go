package directory

import (
	"embed"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/dirsync/modules/directory/infrastructure/fetchers"
	"github.com/iota-uz/dirsync/modules/directory/infrastructure/persistence"
	"github.com/iota-uz/dirsync/modules/directory/services"
	"github.com/iota-uz/dirsync/pkg/eventbus"
)

//go:embed infrastructure/persistence/schema/*.sql
var MigrationFiles embed.FS

// Module bundles the wired directory services for the CLI entrypoints.
type Module struct {
	DataSources  services.DataSourceRepository
	Tasks        services.SyncTaskRepository
	Orchestrator *services.Orchestrator
}

// Options carries the tunables the CLI reads from the environment.
type Options struct {
	BatchSize    int
	Orchestrator services.OrchestratorOptions
}

func NewModule(bus eventbus.EventBus, log *logrus.Logger, opts Options) *Module {
	sources := persistence.NewDataSourceRepository()
	depts := persistence.NewDepartmentRepository(opts.BatchSize)
	users := persistence.NewUserRepository(opts.BatchSize)
	relations := persistence.NewRelationRepository()
	tasks := persistence.NewSyncTaskRepository()
	tenants := persistence.NewTenantEntityRepository()

	orchestrator := services.NewOrchestrator(
		sources,
		tasks,
		services.NewDepartmentSyncer(depts, relations, log),
		services.NewUserSyncer(users, log),
		services.NewRelationSyncer(relations, log),
		services.NewTenantProjector(tenants, users, depts, log),
		fetchers.NewFactory(log),
		bus,
		log,
		opts.Orchestrator,
	)

	return &Module{
		DataSources:  sources,
		Tasks:        tasks,
		Orchestrator: orchestrator,
	}
}
