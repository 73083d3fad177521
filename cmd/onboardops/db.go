package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/database"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the onboarding database",
	}
	cmd.AddCommand(newDBPingCmd(a), newDBTablesCmd(a), newDBColumnsCmd(a), newDBCountCmd(a), newDBExecCmd(a))
	return cmd
}

func newDBPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity and print the server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := a.db(cmd.Context())
			if err != nil {
				return err
			}
			version, elapsed, err := database.Ping(cmd.Context(), pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok (%s)\n%s\n", elapsed.Round(time.Millisecond), version)
			return nil
		},
	}
}

func newDBTablesCmd(a *app) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List tables and views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := a.db(cmd.Context())
			if err != nil {
				return err
			}
			tables, err := database.Tables(cmd.Context(), pool, schema)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tTYPE")
			for _, t := range tables {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Type)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "public", "Schema to list")
	return cmd
}

func newDBColumnsCmd(a *app) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "columns TABLE",
		Short: "Describe the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := a.db(cmd.Context())
			if err != nil {
				return err
			}
			cols, err := database.Columns(cmd.Context(), pool, schema, args[0])
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				return fmt.Errorf("table %s.%s not found", schema, args[0])
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tTYPE\tNULLABLE\tDEFAULT")
			for _, c := range cols {
				def := ""
				if c.Default != nil {
					def = *c.Default
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", c.Name, c.DataType, c.Nullable, def)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "public", "Schema of the table")
	return cmd
}

func newDBCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count TABLE...",
		Short: "Count rows in one or more tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := a.db(cmd.Context())
			if err != nil {
				return err
			}
			failed := 0
			for _, table := range args {
				n, err := database.RowCount(cmd.Context(), pool, table)
				if err != nil {
					a.logger.Error("count failed", zap.String("table", table), zap.Error(err))
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t✗ %v\n", table, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", table, n)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tables could not be counted", failed, len(args))
			}
			return nil
		},
	}
}

func newDBExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec SQL",
		Short: "Run one ad-hoc SQL statement",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := a.db(cmd.Context())
			if err != nil {
				return err
			}
			sql := strings.Join(args, " ")
			a.logger.Debug("exec", zap.String("sql", sql))
			res, err := database.Exec(cmd.Context(), pool, sql)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(res.Columns) > 0 {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
				for _, row := range res.Rows {
					cells := make([]string, len(row))
					for i, v := range row {
						cells[i] = formatCell(v)
					}
					fmt.Fprintln(tw, strings.Join(cells, "\t"))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			fmt.Fprintln(out, res.Tag)
			return nil
		},
	}
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("\\x%x", b)
	}
	return fmt.Sprint(v)
}
