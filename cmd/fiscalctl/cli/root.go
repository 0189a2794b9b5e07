// Package cli implements the fiscalctl administration commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/fiscalpos/fiscalpos/internal/fiscal"
)

// RangeAdmin is the slice of the fiscal service the CLI drives.
type RangeAdmin interface {
	ListRanges(ctx context.Context, activeOnly bool) ([]fiscal.Range, error)
	CreateRange(ctx context.Context, actorID int64, input fiscal.CreateRangeInput) (fiscal.Range, error)
	SetActive(ctx context.Context, actorID, id int64, active bool) (fiscal.Range, error)
	Capacity(ctx context.Context) ([]fiscal.CapacityReport, error)
}

// JobQueue is implemented by JobsCLI.
type JobQueue interface {
	Trigger(ctx context.Context, req TriggerRequest) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context, queue string) (QueueStats, error)
	ListScheduled(ctx context.Context, queue string, size int) ([]*asynq.TaskInfo, error)
}

// Env opens backends on demand so a command only connects to what it uses.
// The returned release func is always non-nil on success.
type Env struct {
	OpenRanges func(ctx context.Context) (RangeAdmin, func(), error)
	OpenJobs   func(ctx context.Context) (JobQueue, func(), error)
	Migrate    func(ctx context.Context) ([]string, error)
}

type globalFlags struct {
	actorID int64
	json    bool
}

// NewRootCommand assembles the fiscalctl command tree.
func NewRootCommand(env Env) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "fiscalctl",
		Short:         "Administer CAI ranges and background jobs of fiscalpos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Int64Var(&flags.actorID, "actor", 0, "user id recorded in the audit log")
	root.PersistentFlags().BoolVar(&flags.json, "json", false, "print JSON instead of a table")

	root.AddCommand(newRangesCommand(env, flags), newJobsCommand(env, flags), newMigrateCommand(env))
	return root
}

func newMigrateCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applied, err := env.Migrate(cmd.Context())
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
