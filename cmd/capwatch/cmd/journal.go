package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/capwatch/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query run journal data",
	Long: `Query and display records from a SQLite run journal.

Subcommands:
  runs           - List journaled runs
  fills <run>    - List the fills of a run
  aborts <run>   - List the aborts of a run
  equity <run>   - Print the equity curve of a run

Examples:
  capwatch journal runs
  capwatch journal fills 0d4f1c52-...`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journaled runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalFillsCmd = &cobra.Command{
	Use:   "fills <run-id>",
	Short: "List the fills of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalFills,
}

var journalAbortsCmd = &cobra.Command{
	Use:   "aborts <run-id>",
	Short: "List the aborts of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalAborts,
}

var journalEquityCmd = &cobra.Command{
	Use:   "equity <run-id>",
	Short: "Print the equity curve of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalEquity,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalFillsCmd)
	journalCmd.AddCommand(journalAbortsCmd)
	journalCmd.AddCommand(journalEquityCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./capwatch.sqlite", "path to SQLite journal DB")
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns()
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}
	for _, r := range runs {
		fmt.Fprintln(cmd.OutOrStdout(), r)
	}
	return nil
}

func runJournalFills(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	fills, err := j.ListFills(args[0])
	if err != nil {
		return fmt.Errorf("query fills: %w", err)
	}
	for _, f := range fills {
		fmt.Fprintln(cmd.OutOrStdout(), journal.FormatFill(f))
	}
	return nil
}

func runJournalAborts(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	aborts, err := j.ListAborts(args[0])
	if err != nil {
		return fmt.Errorf("query aborts: %w", err)
	}
	for _, a := range aborts {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %s\n", a.Time.UTC().Format("2006-01-02T15:04:05Z"), a.ExitMode, a.Message)
	}
	return nil
}

func runJournalEquity(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	points, err := j.ListEquity(args[0])
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}
	for _, p := range points {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  price=%s equity=%s drawdown=%s\n",
			p.Time.UTC().Format("2006-01-02T15:04:05Z"), p.Price, p.Equity.StringFixed(2), p.Drawdown.StringFixed(4))
	}
	return nil
}
