package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ai-transform-service/internal/domain/ports/repository"
	pg "ai-transform-service/internal/infra/db/postgres"
	red "ai-transform-service/internal/infra/redis"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect budget windows",
}

var budgetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show spend and remaining units per window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		var ledger repository.BudgetLedger
		switch cfg.Budget.Backend {
		case "redis":
			client, err := red.NewClient(ctx, cfg.Redis)
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer client.Close()
			if ledger, err = red.NewBudgetLedger(client, cfg.Budget.Ledger, cfg.BudgetSpecs()); err != nil {
				return err
			}
		case "postgres":
			pool, err := pg.Connect(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()
			if ledger, err = pg.NewBudgetLedger(ctx, pool, pg.NewTxManager(pool), cfg.Budget.Ledger, cfg.BudgetSpecs()); err != nil {
				return err
			}
		default:
			return fmt.Errorf("budget backend %q keeps no shared state to show", cfg.Budget.Backend)
		}

		windows, err := ledger.Snapshot(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WINDOW\tSTART\tDURATION\tSPENT\tCAP\tREMAINING")
		for _, w := range windows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", w.Name, w.WindowStart.Format(time.RFC3339), w.Duration, w.SpentUnits, w.CapUnits, w.Remaining())
		}
		return tw.Flush()
	},
}

func init() {
	budgetCmd.AddCommand(budgetShowCmd)
	rootCmd.AddCommand(budgetCmd)
}
