package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/iota-uz/dirsync/modules/directory/domain/synctask"
	"github.com/iota-uz/dirsync/pkg/scheduler"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the sync scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			run := func(runCtx context.Context, dataSourceID uuid.UUID) error {
				runCtx = rt.ctx(runCtx)
				ds, err := rt.module.DataSources.GetByID(runCtx, dataSourceID)
				if err != nil {
					return err
				}
				taskID, err := rt.module.Orchestrator.RegisterTask(
					runCtx, dataSourceID, "scheduler", synctask.TriggerScheduled,
					ds.Mode(), ds.Policy(),
				)
				if err != nil {
					return err
				}
				return rt.module.Orchestrator.Run(runCtx, taskID)
			}

			sched := scheduler.New(rt.log, run)
			sources, err := rt.module.DataSources.ListScheduled(rt.ctx(ctx))
			if err != nil {
				return err
			}
			for _, ds := range sources {
				if err := sched.Register(ds.ID(), ds.CronExpr()); err != nil {
					rt.log.WithError(err).WithField("data_source_id", ds.ID()).
						Warn("skipping data source with bad cron expression")
				}
			}
			rt.log.WithField("data_sources", len(sources)).Info("scheduler started")
			sched.Start()

			var metricsSrv *http.Server
			if rt.conf.Prometheus.Enabled {
				mux := http.NewServeMux()
				mux.Handle(rt.conf.Prometheus.Path, promhttp.Handler())
				metricsSrv = &http.Server{Addr: rt.conf.Prometheus.Addr, Handler: mux}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						rt.log.WithError(err).Error("metrics server failed")
					}
				}()
			}

			<-ctx.Done()
			rt.log.Info("shutting down")
			sched.Stop()
			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
}
