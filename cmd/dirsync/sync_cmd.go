package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/dirsync/modules/directory/domain/datasource"
	"github.com/iota-uz/dirsync/modules/directory/domain/synctask"
)

type syncOptions struct {
	DataSourceID string
	Operator     string
	Mode         string
	Policy       string
}

func newSyncCmd() *cobra.Command {
	opts := syncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization for a data source",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataSourceID, err := uuid.Parse(opts.DataSourceID)
			if err != nil {
				return fmt.Errorf("invalid --data-source: %w", err)
			}

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			ctx := rt.ctx(cmd.Context())

			ds, err := rt.module.DataSources.GetByID(ctx, dataSourceID)
			if err != nil {
				return err
			}
			mode, err := parseMode(opts.Mode, ds.Mode())
			if err != nil {
				return err
			}
			policy, err := parsePolicy(opts.Policy, ds.Policy())
			if err != nil {
				return err
			}

			taskID, err := rt.module.Orchestrator.RegisterTask(
				ctx, dataSourceID, opts.Operator, synctask.TriggerManual, mode, policy,
			)
			if err != nil {
				return err
			}
			rt.log.WithField("task_id", taskID).Info("sync task registered")

			if err := rt.module.Orchestrator.Run(ctx, taskID); err != nil {
				return err
			}

			task, err := rt.module.Tasks.GetByID(ctx, taskID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s finished with status %s\n", task.ID, task.Status)
			for typ, c := range task.Counters {
				fmt.Fprintf(
					cmd.OutOrStdout(),
					"  %-16s created=%d updated=%d deleted=%d skipped=%d\n",
					typ, c.Created, c.Updated, c.Deleted, c.Skipped,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.DataSourceID, "data-source", "", "data source ID (required)")
	cmd.Flags().StringVar(&opts.Operator, "operator", "cli", "operator recorded on the task")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "sync mode override (full|incremental)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "sync policy override (overwrite|append)")
	_ = cmd.MarkFlagRequired("data-source")
	return cmd
}

func parseMode(v string, fallback datasource.SyncMode) (datasource.SyncMode, error) {
	switch v {
	case "":
		return fallback, nil
	case string(datasource.ModeFull):
		return datasource.ModeFull, nil
	case string(datasource.ModeIncremental):
		return datasource.ModeIncremental, nil
	default:
		return "", fmt.Errorf("invalid --mode %q, want full or incremental", v)
	}
}

func parsePolicy(v string, fallback datasource.SyncPolicy) (datasource.SyncPolicy, error) {
	switch v {
	case "":
		return fallback, nil
	case string(datasource.PolicyOverwrite):
		return datasource.PolicyOverwrite, nil
	case string(datasource.PolicyAppend):
		return datasource.PolicyAppend, nil
	default:
		return "", fmt.Errorf("invalid --policy %q, want overwrite or append", v)
	}
}
