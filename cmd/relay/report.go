package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/usage"
	"mercator-hq/relay/pkg/usage/storage"
)

var reportFlags struct {
	month  int
	all    bool
	write  bool
	format string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the unique device usage report",
	Long: `Print the monthly unique device report from the usage database.

The report covers the most recent occurrence of the month: the current
year if the month has started, the previous year otherwise. Sessions
without a valid cookie are not counted.

Examples:
  # Report for the current month
  relay report

  # Report for March as JSON
  relay report --month 3 --format json

  # Every month of the past year as CSV
  relay report --all --format csv

  # Write the report file to the reports directory
  relay report --month 3 --write`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().IntVarP(&reportFlags.month, "month", "m", 0, "month to report, 1-12 (default current month)")
	reportCmd.Flags().BoolVar(&reportFlags.all, "all", false, "report every month")
	reportCmd.Flags().BoolVar(&reportFlags.write, "write", false, "write the report file to usage.reports_dir and print its path")
	reportCmd.Flags().StringVar(&reportFlags.format, "format", "text", "output format: text, json, csv")
	reportCmd.MarkFlagsMutuallyExclusive("all", "month")
	reportCmd.MarkFlagsMutuallyExclusive("all", "write")
}

func runReport(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(reportFlags.format)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	if cfg.Usage.Backend == "memory" {
		return cli.NewConfigError("usage.backend", "the memory backend keeps no records outside the running relay")
	}
	if _, err := os.Stat(cfg.Usage.Path); err != nil {
		return cli.NewCommandError("report", fmt.Errorf("usage database: %w", err))
	}

	st, err := storage.Open(cfg.Usage.Backend, cfg.Usage.Path)
	if err != nil {
		return cli.NewCommandError("report", err)
	}
	defer st.Close()

	reporter := usage.NewReporter(st, usage.ReporterConfig{
		Company: cfg.Relay.LicenseCompany,
		Dir:     cfg.Usage.ReportsDir,
	})

	month := reportFlags.month
	if month == 0 {
		month = reporter.CurrentMonth()
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if reportFlags.write {
		path, _, err := reporter.WriteFile(ctx, month)
		if err != nil {
			return reportError(err)
		}
		fmt.Fprintln(out, path)
		return nil
	}

	months := []int{month}
	if reportFlags.all {
		months = months[:0]
		for m := 1; m <= 12; m++ {
			months = append(months, m)
		}
	}

	reports := make([]*usage.Report, 0, len(months))
	for _, m := range months {
		report, err := reporter.Generate(ctx, m)
		if err != nil {
			return reportError(err)
		}
		reports = append(reports, report)
	}

	if format == cli.FormatText && len(reports) == 1 {
		fmt.Fprintln(out, reports[0].String())
		return nil
	}

	table := &cli.Table{Headers: []string{"company", "month", "unique_devices", "total_requests", "created"}}
	for _, r := range reports {
		table.AddRow(r.Company, int(r.Month), r.UniqueDevices, r.TotalRequests, r.Created.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return cli.NewFormatter(format).FormatTo(out, table)
}

func reportError(err error) error {
	if errors.Is(err, usage.ErrInvalidMonth) {
		return fmt.Errorf("--month must be between 1 and 12, got %d", reportFlags.month)
	}
	return cli.NewCommandError("report", err)
}
