package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/cashback/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var jobAliases = map[string]string{
	"invoices":                     scheduler.JobInvoiceGeneration,
	scheduler.JobInvoiceGeneration: scheduler.JobInvoiceGeneration,
	scheduler.JobDunning:           scheduler.JobDunning,
	scheduler.JobCancellations:     scheduler.JobCancellations,
}

func runCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:       "run <invoices|dunning|cancellations>",
		Short:     "Run one billing job and print its result as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"invoices", scheduler.JobDunning, scheduler.JobCancellations},
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := resolveJob(args[0])
			if err != nil {
				return err
			}
			at, err := parseRunDate(date)
			if err != nil {
				return err
			}

			var sched *scheduler.Scheduler
			app := fx.New(
				infra(),
				billing(),
				fx.Populate(&sched),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = app.Stop(stopCtx)
			}()

			result, runErr := sched.RunJob(ctx, job, at)
			if runErr == nil || result.RunID != "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "billing date as YYYY-MM-DD (UTC); defaults to today")
	return cmd
}

func resolveJob(arg string) (string, error) {
	job, ok := jobAliases[strings.ToLower(strings.TrimSpace(arg))]
	if !ok {
		return "", fmt.Errorf("%w: %q", scheduler.ErrUnknownJob, arg)
	}
	return job, nil
}

func parseRunDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	at, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", raw)
	}
	return at, nil
}
