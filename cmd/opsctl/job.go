package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pg "ai-transform-service/internal/infra/db/postgres"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect generation jobs",
}

var jobShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the job record for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		job, err := pg.NewJobRepo(pool).Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

var recoverableLimit int

var jobRecoverableCmd = &cobra.Command{
	Use:   "recoverable",
	Short: "List non-terminal jobs without a live lease",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		jobs, err := pg.NewJobRepo(pool).ListRecoverable(ctx, recoverableLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), jobs)
	},
}

func init() {
	jobRecoverableCmd.Flags().IntVarP(&recoverableLimit, "limit", "n", 50, "maximum number of jobs to list")
	jobCmd.AddCommand(jobShowCmd, jobRecoverableCmd)
	rootCmd.AddCommand(jobCmd)
}
