package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	fctx "github.com/Ramsey-B/fern/pkg/context"
)

func sweepCmd(envFiles *[]string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Approve commissions whose hold has matured, once, and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFiles...)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if limit <= 0 {
				limit = cfg.SweepBatchSize
			}
			return runSweep(cmd, cfg, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to approve (default SWEEP_BATCH_SIZE)")

	return cmd
}

func runSweep(cmd *cobra.Command, cfg *config.Config, limit int) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = fctx.SetSource(ctx, "cli")

	logger, sync, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sync()

	a := newApp(cfg, logger)
	deps := a.startup(appOptions{})
	if err := deps.Start(ctx); err != nil {
		return err
	}
	defer deps.Stop(context.WithoutCancel(ctx))

	result, err := a.engine.ApproveMatured(ctx, limit)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
