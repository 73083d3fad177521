package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bundled schema patches",
	}
	cmd.AddCommand(newMigrateStatusCmd(a), newMigrateApplyCmd(a))
	return cmd
}

func (a *app) patcher(cmd *cobra.Command) (*database.Patcher, error) {
	pool, err := a.db(cmd.Context())
	if err != nil {
		return nil, err
	}
	patches, err := database.EmbeddedPatches()
	if err != nil {
		return nil, err
	}
	return database.NewPatcher(pool, patches), nil
}

func newMigrateStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which patches have been applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.patcher(cmd)
			if err != nil {
				return err
			}
			plan, err := p.Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATCH\tSTATUS\tAPPLIED AT")
			for _, st := range plan {
				if st.Applied {
					fmt.Fprintf(tw, "%s\tapplied\t%s\n", st.Name, st.AppliedAt.Format("2006-01-02 15:04:05"))
				} else {
					fmt.Fprintf(tw, "%s\tpending\t\n", st.Name)
				}
			}
			return tw.Flush()
		},
	}
}

func newMigrateApplyCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply every pending patch in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.patcher(cmd)
			if err != nil {
				return err
			}
			done, err := p.Apply(cmd.Context(), dryRun)
			out := cmd.OutOrStdout()
			for _, patch := range done {
				if dryRun {
					fmt.Fprintf(out, "would apply %s\n%s\n", patch.Name, patch.SQL)
				} else {
					fmt.Fprintf(out, "✓ applied %s\n", patch.Name)
				}
			}
			if err != nil {
				return err
			}
			if len(done) == 0 {
				fmt.Fprintln(out, "nothing to apply")
			}
			a.logger.Info("migrate apply finished", zap.Int("patches", len(done)), zap.Bool("dry_run", dryRun))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print pending patches without applying them")
	return cmd
}
