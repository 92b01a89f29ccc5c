package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/report"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect stored evaluation reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports, newest first",
	Args:  cobra.NoArgs,
	RunE:  runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsShow,
}

var (
	reportsLimit    int
	reportsPassed   bool
	reportsRejected bool
	reportsJSON     bool
)

var errStoreDisabled = errors.New("report persistence is disabled (state.enabled: false)")

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd)

	reportsListCmd.Flags().IntVarP(&reportsLimit, "limit", "l", 20, "maximum reports to list (0 for all)")
	reportsListCmd.Flags().BoolVar(&reportsPassed, "passed", false, "only accepted outputs")
	reportsListCmd.Flags().BoolVar(&reportsRejected, "rejected", false, "only rejected outputs")
	reportsListCmd.MarkFlagsMutuallyExclusive("passed", "rejected")
	reportsCmd.PersistentFlags().BoolVarP(&reportsJSON, "json", "j", false, "print as JSON")
}

func openReports() (*app, error) {
	a, err := newApp(appOptions{})
	if err != nil {
		return nil, err
	}
	if a.store == nil {
		return nil, errStoreDisabled
	}
	return a, nil
}

func runReportsList(cmd *cobra.Command, _ []string) error {
	a, err := openReports()
	if err != nil {
		return err
	}
	defer a.Close()

	filter := core.ReportFilter{Limit: reportsLimit}
	switch {
	case reportsPassed:
		passed := true
		filter.Passed = &passed
	case reportsRejected:
		passed := false
		filter.Passed = &passed
	}

	recs, err := a.store.List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if reportsJSON {
		return writeJSON(cmd.OutOrStdout(), recs)
	}
	printMarkdown(cmd, report.Records(recs))
	return nil
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	a, err := openReports()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if reportsJSON {
		return writeJSON(cmd.OutOrStdout(), rec)
	}
	printMarkdown(cmd, report.Record(rec))
	return nil
}
