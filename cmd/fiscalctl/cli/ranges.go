package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiscalpos/fiscalpos/internal/fiscal"
)

func newRangesCommand(env Env, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ranges",
		Short: "Manage CAI authorization ranges",
	}
	cmd.AddCommand(
		newRangesListCommand(env, flags),
		newRangesCreateCommand(env, flags),
		newRangesToggleCommand(env, flags, true),
		newRangesToggleCommand(env, flags, false),
		newRangesCapacityCommand(env, flags),
	)
	return cmd
}

func newRangesListCommand(env Env, flags *globalFlags) *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, release, err := env.OpenRanges(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			ranges, err := admin.ListRanges(cmd.Context(), activeOnly)
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), ranges)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCAI\tPREFIX\tRANGE\tCURRENT\tPENDING\tVALID TO\tACTIVE")
			for _, r := range ranges {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d-%d\t%d\t%d\t%s\t%t\n",
					r.ID, r.AuthorizationCode, r.Prefix, r.Initial, r.Final, r.Current, r.Pending,
					r.ValidTo.Format(time.DateOnly), r.Active)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active ranges")
	return cmd
}

func newRangesCreateCommand(env Env, flags *globalFlags) *cobra.Command {
	var (
		input    fiscal.CreateRangeInput
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new CAI range",
		Example: `  fiscalctl ranges create --cai 35A2B1-C5D6E7-F8A9B0-C1D2E3-F4A5B6-07 \
    --prefix 000-001-01- --from 2026-01-01 --to 2026-12-31 --initial 1 --final 5000 --active`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if input.ValidFrom, err = time.Parse(time.DateOnly, from); err != nil {
				return fmt.Errorf("invalid --from, use YYYY-MM-DD: %w", err)
			}
			if input.ValidTo, err = time.Parse(time.DateOnly, to); err != nil {
				return fmt.Errorf("invalid --to, use YYYY-MM-DD: %w", err)
			}

			admin, release, err := env.OpenRanges(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			rng, err := admin.CreateRange(cmd.Context(), flags.actorID, input)
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), rng)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created range %d (%s, %d pending)\n", rng.ID, rng.AuthorizationCode, rng.Pending)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.AuthorizationCode, "cai", "", "authorization code")
	cmd.Flags().StringVar(&input.Prefix, "prefix", "", "printed number prefix")
	cmd.Flags().StringVar(&from, "from", "", "first valid day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last valid day (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&input.Initial, "initial", 1, "first correlative")
	cmd.Flags().Int64Var(&input.Final, "final", 0, "last correlative")
	cmd.Flags().BoolVar(&input.Active, "active", false, "activate immediately")
	for _, name := range []string{"cai", "prefix", "from", "to", "final"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newRangesToggleCommand(env Env, flags *globalFlags, active bool) *cobra.Command {
	use, short := "deactivate", "Deactivate a range"
	if active {
		use, short = "activate", "Activate a range"
	}
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid range id %q", args[0])
			}

			admin, release, err := env.OpenRanges(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			rng, err := admin.SetActive(cmd.Context(), flags.actorID, id, active)
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), rng)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "range %d active=%t\n", rng.ID, rng.Active)
			return nil
		},
	}
}

func newRangesCapacityCommand(env Env, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "capacity",
		Short: "Show remaining correlatives and days to expiry of active ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, release, err := env.OpenRanges(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			reports, err := admin.Capacity(cmd.Context())
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCAI\tPENDING\tTOTAL\tDAYS LEFT\tEXPIRED")
			for _, r := range reports {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%t\n", r.RangeID, r.AuthorizationCode, r.Pending, r.Total, r.DaysToExpiry, r.Expired)
			}
			return tw.Flush()
		},
	}
}
