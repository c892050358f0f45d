package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/HerbHall/creditdesk/internal/monitor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMonitorCmd() *cobra.Command {
	var (
		outDir string
		format string
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run one health cycle, print a summary and exit",
		Long: `Run every configured probe once and print the health report summary.

The exit status is 0 for a healthy or degraded platform, 2 when the
platform is unhealthy, and 1 on any other error.

Examples:
  creditdesk monitor
  creditdesk monitor --out ./reports --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != monitor.FormatJSON && format != monitor.FormatYAML {
				return fmt.Errorf("unknown --format %q (want json or yaml)", format)
			}
			return runMonitor(cmd.Context(), configFlag(cmd), outDir, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write the report into")
	cmd.Flags().StringVarP(&format, "format", "f", monitor.FormatJSON, "report file format (json or yaml)")
	return cmd
}

func runMonitor(ctx context.Context, configPath, outDir, format string, out io.Writer) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	mcfg, err := a.monitorConfig()
	if err != nil {
		return err
	}
	// One cycle, no background loops; the report file is written below so its
	// path can be printed.
	mcfg.Interval = 0
	mcfg.HistoryRetention = 0
	mcfg.ReportDir = ""

	mon, err := a.buildMonitor(ctx, mcfg)
	if err != nil {
		return err
	}

	report, err := mon.RunOnce(ctx)
	if err != nil {
		a.logger.Warn("cycle side effects failed", zap.Error(err))
	}
	printSummary(out, report)

	if outDir != "" {
		path, err := monitor.WriteReport(outDir, report, format)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nReport written to %s\n", path)
	}

	if report.OverallStatus == monitor.StatusUnhealthy {
		return &exitError{code: 2, msg: "platform is unhealthy"}
	}
	return nil
}

func printSummary(out io.Writer, r *monitor.HealthReport) {
	fmt.Fprintf(out, "%s: %s (%.2f%%, %d/%d checks passed, %.0fms)\n",
		r.Platform, r.OverallStatus, r.HealthPercentage, r.ChecksPassed, r.TotalChecks, r.DurationMs)

	names := make([]string, 0, len(r.Summary))
	for name := range r.Summary {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-20s %s\n", name, r.Summary[name])
	}
}
