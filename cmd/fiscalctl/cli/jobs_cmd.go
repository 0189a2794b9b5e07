package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiscalpos/fiscalpos/jobs"
)

func newJobsCommand(env Env, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}
	cmd.AddCommand(
		newJobsTriggerCommand(env, flags),
		newJobsInspectCommand(env, flags),
		newJobsScheduledCommand(env, flags),
	)
	return cmd
}

func newJobsTriggerCommand(env Env, flags *globalFlags) *cobra.Command {
	req := TriggerRequest{}
	cmd := &cobra.Command{
		Use:       "trigger TASK",
		Short:     "Enqueue a job now",
		ValidArgs: []string{jobs.TaskFiscalRangeWatch, jobs.TaskShiftReport, jobs.TaskIdempotencyCleanup},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			if _, _, err := BuildTask(req); err != nil {
				return err
			}

			queue, release, err := env.OpenJobs(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			info, err := queue.Trigger(cmd.Context(), req)
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": info.ID, "queue": info.Queue, "type": info.Type})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().Int64Var(&req.ShiftID, "shift-id", 0, "closed shift to report (shift:report)")
	cmd.Flags().Int64Var(&req.LowCapacity, "low-capacity", 0, "pending threshold override (fiscal:range-watch)")
	cmd.Flags().IntVar(&req.ExpiryDays, "expiry-days", 0, "expiry warning override (fiscal:range-watch)")
	cmd.Flags().DurationVar(&req.OlderThan, "older-than", 0, "retention override (idempotency:cleanup)")
	return cmd
}

func newJobsInspectCommand(env Env, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, release, err := env.OpenJobs(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			var stats []QueueStats
			for _, name := range []string{jobs.QueueReports, jobs.QueueDefault} {
				s, err := queue.InspectQueue(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("inspect %s: %w", name, err)
				}
				stats = append(stats, s)
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
			}
			return tw.Flush()
		},
	}
}

func newJobsScheduledCommand(env Env, flags *globalFlags) *cobra.Command {
	var (
		queueName string
		size      int
	)
	cmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks of a queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, release, err := env.OpenJobs(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			tasks, err := queue.ListScheduled(cmd.Context(), queueName, size)
			if err != nil {
				return err
			}
			type row struct {
				ID        string    `json:"id"`
				Type      string    `json:"type"`
				NextRunAt time.Time `json:"next_run_at"`
			}
			rows := make([]row, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, row{ID: t.ID, Type: t.Type, NextRunAt: t.NextProcessAt})
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Type, r.NextRunAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&queueName, "queue", jobs.QueueDefault, "queue name")
	cmd.Flags().IntVar(&size, "size", 10, "page size")
	return cmd
}
