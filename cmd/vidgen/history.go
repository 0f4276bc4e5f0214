package main

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/skyreel/vidgen/history"
)

func newHistoryCmd(flags *appFlags) *cobra.Command {
	var (
		modelType  string
		configName string
		limit      int
		since      time.Duration
		failed     bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past generation attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, false)
			if err != nil {
				return err
			}

			filter := history.Filter{ModelType: modelType, ConfigName: configName, Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			records, err := a.history.List(filter)
			if err != nil {
				return err
			}
			if failed {
				records = lo.Filter(records, func(r history.Record, _ int) bool { return !r.Succeeded() })
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching attempts")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %-8s %-16s %-10s %s\n", "WHEN", "MODEL", "CONFIG", "STATUS", "DETAIL")
			for _, r := range records {
				detail := r.OutputDir
				if !r.Succeeded() {
					detail = r.Error
				}
				fmt.Fprintf(out, "%-20s %-8s %-16s %-10s %s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					r.ModelType, r.ConfigName, r.Status, detail)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelType, "model", "m", "", "only attempts for this model type")
	cmd.Flags().StringVar(&configName, "config", "", "only attempts for this config name")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most this many recent attempts")
	cmd.Flags().DurationVar(&since, "since", 0, "only attempts newer than this age (e.g. 24h)")
	cmd.Flags().BoolVar(&failed, "failed", false, "only failed attempts")
	return cmd
}

func newStatsCmd(flags *appFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Aggregate success/failure counts per model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			stats, err := a.history.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if stats.Total == 0 {
				fmt.Fprintln(out, "no attempts recorded")
				return nil
			}

			fmt.Fprintf(out, "%d attempts (%d succeeded, %d failed) between %s and %s\n\n",
				stats.Total, stats.Succeeded, stats.Failed,
				stats.First.Local().Format("2006-01-02"), stats.Last.Local().Format("2006-01-02"))
			fmt.Fprintf(out, "%-10s %8s %10s %8s %10s\n", "MODEL", "TOTAL", "SUCCEEDED", "FAILED", "AVG TIME")
			for _, ms := range stats.ByModel {
				avg := "-"
				if ms.AvgTime > 0 {
					avg = ms.AvgTime.Round(time.Second).String()
				}
				fmt.Fprintf(out, "%-10s %8d %10d %8d %10s\n", ms.ModelType, ms.Total, ms.Succeeded, ms.Failed, avg)
			}
			return nil
		},
	}
}
